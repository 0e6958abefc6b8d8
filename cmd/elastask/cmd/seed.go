package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/elastask/internal/adapters/sqlite"
	"github.com/hugo-lorenzo-mato/elastask/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load task documents into the local SQLite store",
	Long: `Load task documents into the SQLite store configured by store.sqlite_path.
FILE holds either a JSON array of {"_id": ..., "_source": ...} objects or a
complete Elasticsearch search response, so the output of

  curl -u elastic:changeme 'localhost:9200/.kibana_task_manager/_search?size=1000'

can be replayed locally. Documents with an existing id are replaced. Use "-"
to read from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedDoc is one document in a seed file.
type seedDoc struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.BackendSQLite {
		return fmt.Errorf("seed writes to the sqlite store only; store.backend is %q", cfg.Store.Backend)
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	docs, err := parseSeed(data)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening sqlite store: %w", err)
	}
	defer store.Close()

	for _, doc := range docs {
		if _, err := store.Put(cmd.Context(), doc.ID, doc.Source); err != nil {
			return fmt.Errorf("storing %s: %w", doc.ID, err)
		}
	}

	p := newPrinter(cmd.OutOrStdout())
	p.Line("%s Loaded %d document(s) into %s", p.Success("✓"), len(docs), store.Path())
	return nil
}

// parseSeed accepts a document array or a search response.
func parseSeed(data []byte) ([]seedDoc, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("seed file is empty")
	}

	var docs []seedDoc
	if data[0] == '[' {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parsing seed documents: %w", err)
		}
	} else {
		var resp struct {
			Hits *struct {
				Hits []seedDoc `json:"hits"`
			} `json:"hits"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parsing search response: %w", err)
		}
		if resp.Hits == nil {
			return nil, fmt.Errorf("seed file is neither a document array nor a search response")
		}
		docs = resp.Hits.Hits
	}

	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d has no _id", i)
		}
		if len(doc.Source) == 0 {
			return nil, fmt.Errorf("document %s has no _source", doc.ID)
		}
	}
	return docs, nil
}
