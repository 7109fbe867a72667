package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sampledb/sampledb/pkg/store"
)

var (
	importComponent string
	importKind      string
	exportComponent string
	shareComponent  string
	sharePolicyFile string
	shareUserID     int64
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an update batch (or a single entity with --kind) from a peer",
	Long: `Import reads a JSON update batch sent by the component given with
--component and imports it in one transaction. Use "-" to read from stdin.

With --kind the file holds a single entity of that kind instead of a batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readJSONFile(cmd, args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		comp, err := a.component(importComponent)
		if err != nil {
			return err
		}

		if importKind != "" {
			kind, ok := store.ParseKind(importKind)
			if !ok || kind == store.KindComponent {
				return fmt.Errorf("unknown entity kind %q", importKind)
			}
			id, err := a.engine.Import(cmd.Context(), kind, payload, comp.ID)
			if err != nil {
				return err
			}
			if outputFormat() == "table" {
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s #%d\n", kind.Singular(), id)
				return nil
			}
			return printOutput(cmd.OutOrStdout(), map[string]any{"kind": kind, "id": id})
		}

		result, err := a.engine.UpdateShares(cmd.Context(), comp.ID, payload)
		if err != nil {
			return err
		}
		if outputFormat() != "table" {
			return printOutput(cmd.OutOrStdout(), result)
		}
		rows := make([][]string, 0, len(store.FederatedKinds))
		for _, kind := range store.FederatedKinds {
			imported, updated, stubs := result.Imported[kind], result.Updated[kind], result.Stubs[kind]
			if imported+updated+stubs == 0 {
				continue
			}
			rows = append(rows, []string{string(kind), strconv.Itoa(imported), strconv.Itoa(updated), strconv.Itoa(stubs)})
		}
		printTable(cmd.OutOrStdout(), []string{"kind", "imported", "updated", "placeholders"}, rows)
		fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the update batch of everything shared with a component",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		comp, err := a.component(exportComponent)
		if err != nil {
			return err
		}
		batch, err := a.engine.ExportShares(cmd.Context(), comp.ID)
		if err != nil {
			return err
		}
		if outputFormat() == "yaml" {
			return printYAML(cmd.OutOrStdout(), batch)
		}
		// batches are consumed by peers, so table output falls back to JSON
		return printJSON(cmd.OutOrStdout(), batch)
	},
}

var shareCmd = &cobra.Command{
	Use:   "share <object-id>",
	Short: "Share a local object with a component under a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		objectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid object id %q", args[0])
		}
		policy, err := readJSONFile(cmd, sharePolicyFile)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		comp, err := a.component(shareComponent)
		if err != nil {
			return err
		}
		var userID *int64
		if shareUserID > 0 {
			userID = &shareUserID
		}
		if err := a.engine.ShareObject(cmd.Context(), objectID, comp.ID, policy, userID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "object #%d shared with %s\n", objectID, comp.UUID)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importComponent, "component", "", "UUID of the sending component")
	importCmd.Flags().StringVar(&importKind, "kind", "", "Import a single entity of this kind, e.g. objects or user")
	exportCmd.Flags().StringVar(&exportComponent, "component", "", "UUID of the receiving component")
	shareCmd.Flags().StringVar(&shareComponent, "component", "", "UUID of the receiving component")
	shareCmd.Flags().StringVar(&sharePolicyFile, "policy", "", "JSON file holding the share policy")
	shareCmd.Flags().Int64Var(&shareUserID, "user", 0, "Local id of the sharing user")
	_ = shareCmd.MarkFlagRequired("policy")
}

// readJSONFile decodes a JSON object from path, or from stdin for "-".
func readJSONFile(cmd *cobra.Command, path string) (map[string]any, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var v map[string]any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}
