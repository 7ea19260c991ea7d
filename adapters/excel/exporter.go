// Package excel renders a run's artifact set into a multi-sheet workbook
// for analyst hand-off.
package excel

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"electsim/domain/core"
	"electsim/internal/errors"
	"electsim/ports"
)

// Exporter writes xlsx workbooks. Implements ports.ResultExporter.
type Exporter struct{}

// New returns an exporter.
func New() *Exporter {
	return &Exporter{}
}

// Export writes one sheet per artifact family: district results,
// proportional blocks, the national summary and the validation report.
func (e *Exporter) Export(path string, artifacts ports.RunArtifacts) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeDistricts(f, artifacts); err != nil {
		return err
	}
	if err := e.writeProportional(f, artifacts); err != nil {
		return err
	}
	if err := e.writeSummary(f, artifacts); err != nil {
		return err
	}
	if err := e.writeValidation(f, artifacts); err != nil {
		return err
	}

	// Drop the default sheet left by excelize.
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return errors.StorageError("writing workbook "+path, err)
	}
	return nil
}

func (e *Exporter) writeDistricts(f *excelize.File, artifacts ports.RunArtifacts) error {
	const sheet = "Districts"
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.StorageError("creating sheet", err)
	}
	headers := []interface{}{
		"District", "Name", "Personas", "Turnout", "Turnout Rate",
		"Winner", "Winner Party", "Winner Votes", "Runner-up", "Margin",
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return errors.StorageError("writing header", err)
	}
	for i, d := range artifacts.DistrictResults {
		row := []interface{}{
			string(d.DistrictID), d.DistrictName, d.TotalPersonas, d.TurnoutCount, d.TurnoutRate,
			d.Winner, string(d.WinnerParty), d.WinnerVotes, d.RunnerUp, d.Margin,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.StorageError("writing district row", err)
		}
	}
	return nil
}

func (e *Exporter) writeProportional(f *excelize.File, artifacts ports.RunArtifacts) error {
	const sheet = "Proportional"
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.StorageError("creating sheet", err)
	}
	headers := []interface{}{"Block", "Block Seats", "Party", "Votes", "Vote Share", "Seats"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return errors.StorageError("writing header", err)
	}
	rowIdx := 2
	for _, b := range artifacts.BlockResults {
		for _, ps := range b.Parties {
			row := []interface{}{
				string(b.BlockID), b.Seats, string(ps.Party), ps.Votes, ps.VoteShare, ps.Seats,
			}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowIdx), &row); err != nil {
				return errors.StorageError("writing block row", err)
			}
			rowIdx++
		}
	}
	return nil
}

func (e *Exporter) writeSummary(f *excelize.File, artifacts ports.RunArtifacts) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.StorageError("creating sheet", err)
	}
	if artifacts.Summary == nil {
		return nil
	}
	s := artifacts.Summary

	rows := [][]interface{}{
		{"Experiment", string(artifacts.Record.ID)},
		{"Districts", s.TotalDistricts},
		{"Failed districts", len(s.FailedDistricts)},
		{"Total personas", s.TotalPersonas},
		{"National turnout", s.NationalTurnoutRate},
		{"Majority threshold", s.MajorityThreshold},
		{},
		{"Party", "SMD", "PR", "Total"},
	}
	parties := make([]string, 0, len(s.TotalSeats))
	for p := range s.TotalSeats {
		parties = append(parties, string(p))
	}
	sort.Strings(parties)
	for _, p := range parties {
		split := s.TotalSeats[core.PartyID(p)]
		rows = append(rows, []interface{}{p, split.SMD, split.PR, split.Total})
	}
	for i := range rows {
		row := rows[i]
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return errors.StorageError("writing summary row", err)
		}
	}
	return nil
}

func (e *Exporter) writeValidation(f *excelize.File, artifacts ports.RunArtifacts) error {
	const sheet = "Validation"
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.StorageError("creating sheet", err)
	}
	if artifacts.ValidationReport == nil {
		return nil
	}
	headers := []interface{}{"Check", "Passed", "Hard", "Detail"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return errors.StorageError("writing header", err)
	}
	for i, c := range artifacts.ValidationReport.Checks {
		row := []interface{}{c.Name, c.Passed, c.Hard, c.Detail}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return errors.StorageError("writing check row", err)
		}
	}
	return nil
}

var _ ports.ResultExporter = (*Exporter)(nil)
