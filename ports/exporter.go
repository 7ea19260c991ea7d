package ports

// ResultExporter renders a stored run's artifact set into an external
// hand-off format (e.g. an Excel workbook for analysts).
type ResultExporter interface {
	Export(path string, artifacts RunArtifacts) error
}
