package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/walfollow/internal/store"
	"github.com/bft-labs/walfollow/pkg/state"
	"github.com/bft-labs/walfollow/pkg/wire"
)

// dumpLine is one record as printed by the dump command.
type dumpLine struct {
	LSN       int64     `json:"lsn"`
	Tag       string    `json:"tag"`
	Timestamp time.Time `json:"timestamp"`
	Size      int       `json:"size"`
	Payload   []byte    `json:"payload,omitempty"`
}

func newDumpCommand() *cobra.Command {
	var (
		dataDir string
		from    int64
		limit   int
		payload bool
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print applied records from the local store as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				return fmt.Errorf("data-dir is required")
			}
			st, err := store.Open(dataDir)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			return dump(cmd.OutOrStdout(), st, from, limit, payload)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory of the local replica store")
	cmd.Flags().Int64Var(&from, "from", 1, "first LSN to print")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to print (0 for all)")
	cmd.Flags().BoolVar(&payload, "payload", false, "include payload bytes (base64)")
	return cmd
}

func dump(out io.Writer, st *store.Store, from int64, limit int, payload bool) error {
	enc := json.NewEncoder(out)
	return st.Scan(from, limit, func(e store.Entry) error {
		line := dumpLine{
			LSN:       e.LSN,
			Tag:       wire.Tag(e.Tag).String(),
			Timestamp: wire.Record{Timestamp: e.Timestamp}.Time().UTC(),
			Size:      len(e.Payload),
		}
		if payload {
			line.Payload = e.Payload
		}
		return enc.Encode(line)
	})
}

func newStatusCommand() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the last saved status.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			st, err := state.NewFileRepository(stateDir).Load(cmd.Context())
			if err != nil {
				return err
			}
			if st.IsEmpty() {
				return fmt.Errorf("no status saved in %s", stateDir)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "directory holding status.json")
	return cmd
}
