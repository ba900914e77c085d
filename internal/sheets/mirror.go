package sheets

import (
	"context"
	"fmt"

	sheetsv4 "google.golang.org/api/sheets/v4"

	"hackathon-bot/internal/export"
)

const (
	SheetUsers       = "Users"
	SheetTeams       = "Teams"
	SheetMembers     = "Members"
	SheetSubmissions = "Submissions"
)

var sheetFor = map[export.Kind]string{
	export.KindUsers:       SheetUsers,
	export.KindTeams:       SheetTeams,
	export.KindMembers:     SheetMembers,
	export.KindSubmissions: SheetSubmissions,
}

// Publish replaces the sheet for t.Kind with the table contents.
func (c *Client) Publish(ctx context.Context, t export.Table) error {
	sheet, ok := sheetFor[t.Kind]
	if !ok {
		return fmt.Errorf("no sheet for export kind %q", t.Kind)
	}
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}
	if _, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, sheet+"!A:Z", &sheetsv4.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}
	vr := &sheetsv4.ValueRange{Values: t.Values()}
	if _, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	return nil
}

// PublishAll mirrors every export kind and returns the row count per sheet.
func (c *Client) PublishAll(ctx context.Context, b export.Builder) (map[string]int, error) {
	out := map[string]int{}
	for _, k := range export.Kinds {
		t, err := b.Build(ctx, k)
		if err != nil {
			return out, err
		}
		if err := c.Publish(ctx, t); err != nil {
			return out, err
		}
		out[sheetFor[k]] = len(t.Rows)
	}
	return out, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.srv.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("load spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{Requests: []*sheetsv4.Request{{
		AddSheet: &sheetsv4.AddSheetRequest{Properties: &sheetsv4.SheetProperties{Title: title}},
	}}}
	if _, err := c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	return nil
}
