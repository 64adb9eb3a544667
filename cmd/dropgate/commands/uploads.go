package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dropgate/dropgate/internal/bytesize"
	"github.com/dropgate/dropgate/internal/cli/output"
	"github.com/dropgate/dropgate/internal/cli/timeutil"
	"github.com/dropgate/dropgate/pkg/config"
	"github.com/dropgate/dropgate/pkg/metadata"
	"github.com/dropgate/dropgate/pkg/metadata/store"
	"github.com/spf13/cobra"
)

var (
	uploadsUser    string
	uploadsHistory bool
	uploadsOutput  string
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Inspect uploads in the state store",
	Long: `Inspect upload state directly from the state store.

Reads the same state.json or badger database the server uses. With the
badger backend the server must not be running; the store takes an
exclusive lock.

Examples:
  # List in-flight persistent uploads for all users
  dropgate uploads

  # List uploads for one user
  dropgate uploads --user 4f1f4066e1f1f0d19c34

  # Show the finished-upload history instead
  dropgate uploads --history

  # Output as JSON
  dropgate uploads -o json`,
	RunE: runUploads,
}

func init() {
	uploadsCmd.Flags().StringVar(&uploadsUser, "user", "", "Restrict to one user key")
	uploadsCmd.Flags().BoolVar(&uploadsHistory, "history", false, "Show finished uploads instead of in-flight ones")
	uploadsCmd.Flags().StringVarP(&uploadsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type uploadRow struct {
	ID       string    `json:"id" yaml:"id"`
	UserKey  string    `json:"userKey" yaml:"userKey"`
	FileName string    `json:"fileName" yaml:"fileName"`
	FileSize int64     `json:"fileSize" yaml:"fileSize"`
	Received int       `json:"receivedChunks" yaml:"receivedChunks"`
	Total    int       `json:"totalChunks" yaml:"totalChunks"`
	Status   string    `json:"status" yaml:"status"`
	Persist  bool      `json:"persist" yaml:"persist"`
	Updated  time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// uploadList is a list of in-flight uploads for table rendering.
type uploadList []uploadRow

// Headers implements TableRenderer.
func (ul uploadList) Headers() []string {
	return []string{"ID", "USER", "FILE", "SIZE", "PROGRESS", "STATUS", "MODE", "UPDATED"}
}

// Rows implements TableRenderer.
func (ul uploadList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		rows = append(rows, []string{
			u.ID,
			u.UserKey,
			u.FileName,
			bytesize.ByteSize(u.FileSize).String(),
			fmt.Sprintf("%d/%d", u.Received, u.Total),
			u.Status,
			modeLabel(u.Persist),
			timeutil.FormatTime(u.Updated),
		})
	}
	return rows
}

type historyRow struct {
	ID          string    `json:"id" yaml:"id"`
	UserKey     string    `json:"userKey" yaml:"userKey"`
	FileName    string    `json:"fileName" yaml:"fileName"`
	FileSize    int64     `json:"fileSize" yaml:"fileSize"`
	Persist     bool      `json:"persist" yaml:"persist"`
	CompletedAt time.Time `json:"completedAt" yaml:"completedAt"`
}

// historyList is a list of finished uploads for table rendering.
type historyList []historyRow

// Headers implements TableRenderer.
func (hl historyList) Headers() []string {
	return []string{"ID", "USER", "FILE", "SIZE", "MODE", "COMPLETED"}
}

// Rows implements TableRenderer.
func (hl historyList) Rows() [][]string {
	rows := make([][]string, 0, len(hl))
	for _, h := range hl {
		rows = append(rows, []string{
			h.ID,
			h.UserKey,
			h.FileName,
			bytesize.ByteSize(h.FileSize).String(),
			modeLabel(h.Persist),
			timeutil.FormatTime(h.CompletedAt),
		})
	}
	return rows
}

func modeLabel(persist bool) string {
	if persist {
		return "persistent"
	}
	return "ephemeral"
}

func runUploads(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(uploadsOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	stateStore, err := config.CreateStateStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = stateStore.Close() }()

	ctx := cmd.Context()

	if uploadsHistory {
		rows, err := collectHistory(ctx, stateStore, uploadsUser)
		if err != nil {
			return err
		}
		return printOutput(format, rows, len(rows) == 0, "No finished uploads.", historyList(rows))
	}

	rows, err := collectUploads(ctx, stateStore, uploadsUser)
	if err != nil {
		return err
	}
	return printOutput(format, rows, len(rows) == 0, "No uploads found.", uploadList(rows))
}

// collectUploads gathers in-flight uploads, newest activity first.
// Only persistent uploads appear: ephemeral ones live in server memory
// and never reach the store.
func collectUploads(ctx context.Context, st store.Store, userKey string) ([]uploadRow, error) {
	var rows []uploadRow
	err := st.View(ctx, func(doc *metadata.Document) error {
		if userKey != "" {
			rec, ok := doc.User(userKey)
			if !ok {
				return fmt.Errorf("%w: %s", metadata.ErrUserNotFound, userKey)
			}
			rows = appendUploadRows(rows, rec)
			return nil
		}
		for _, rec := range doc.Users {
			rows = appendUploadRows(rows, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Map iteration order is random.
	sort.Slice(rows, func(i, j int) bool { return rows[i].Updated.After(rows[j].Updated) })
	return rows, nil
}

func appendUploadRows(rows []uploadRow, rec *metadata.UserRecord) []uploadRow {
	for _, u := range rec.Uploads {
		rows = append(rows, uploadRow{
			ID:       u.ID,
			UserKey:  rec.Key,
			FileName: u.FileName,
			FileSize: u.FileSize,
			Received: u.ReceivedChunks.Len(),
			Total:    u.TotalChunks,
			Status:   string(u.Status),
			Persist:  u.Persist,
			Updated:  u.UpdatedAt,
		})
	}
	return rows
}

// collectHistory gathers finished uploads, most recently completed
// first.
func collectHistory(ctx context.Context, st store.Store, userKey string) ([]historyRow, error) {
	var rows []historyRow
	err := st.View(ctx, func(doc *metadata.Document) error {
		if userKey != "" {
			rec, ok := doc.User(userKey)
			if !ok {
				return fmt.Errorf("%w: %s", metadata.ErrUserNotFound, userKey)
			}
			rows = appendHistoryRows(rows, rec)
			return nil
		}
		for _, rec := range doc.Users {
			rows = appendHistoryRows(rows, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CompletedAt.After(rows[j].CompletedAt) })
	return rows, nil
}

func appendHistoryRows(rows []historyRow, rec *metadata.UserRecord) []historyRow {
	for _, h := range rec.History {
		rows = append(rows, historyRow{
			ID:          h.ID,
			UserKey:     rec.Key,
			FileName:    h.FileName,
			FileSize:    h.FileSize,
			Persist:     h.Persist,
			CompletedAt: h.CompletedAt,
		})
	}
	return rows
}

// printOutput prints data in the requested format. For table format it
// displays emptyMsg if there is nothing to show, otherwise renders the
// table.
func printOutput(format output.Format, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, data)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, data)
	default:
		if isEmpty {
			fmt.Println(emptyMsg)
			return nil
		}
		return output.PrintTable(os.Stdout, table)
	}
}
