package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

// New connects with a service account. credentials is either a path to the
// JSON key file or the JSON itself; it may be empty when opts carry auth.
func New(ctx context.Context, credentials, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	credentials = strings.TrimSpace(credentials)
	switch {
	case credentials == "":
	case strings.HasPrefix(credentials, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
	default:
		if _, err := os.Stat(credentials); err != nil {
			return nil, fmt.Errorf("service account json: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	opts = append(opts, option.WithScopes(sheetsv4.SpreadsheetsScope))
	srv, err := sheetsv4.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

func (c *Client) URL() string {
	return "https://docs.google.com/spreadsheets/d/" + c.spreadsheetID
}
