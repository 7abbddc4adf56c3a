package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/profile"
)

var showYAML bool

var showCmd = &cobra.Command{
	Use:   "show <record.json>",
	Short: "Print a saved KYB record",
	Long:  `Print the recap, score and status of a KYB record, or the whole record as YAML with --yaml.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := kyb.ReadFile(args[0])
		if err != nil {
			return err
		}
		if showYAML {
			return writeYAML(cmd.OutOrStdout(), rec)
		}
		writeRecap(cmd.OutOrStdout(), rec)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showYAML, "yaml", false, "print the full record as YAML")
}

func writeRecap(out io.Writer, rec *kyb.Record) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	status := yellow(rec.Status)
	if rec.Status == kyb.StatusComplete {
		status = green(rec.Status)
	}

	snap := rec.Snapshot()
	fmt.Fprintf(out, "\n%s\n", cyan("=== KYB Record "+rec.SessionID+" ==="))
	fmt.Fprintf(out, "Status:  %s\n", status)
	fmt.Fprintf(out, "Score:   %.1f\n", rec.CompletenessScore)
	fmt.Fprintf(out, "Step:    %d\n", rec.WorkflowStep)
	fmt.Fprintf(out, "Updated: %s\n\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out, profile.Recap(rec.BusinessInfo.WhatTheySell, snap.Knowledge))
	for _, src := range rec.ScrapedSources {
		fmt.Fprintf(out, "Source: %s (%s)\n", src.URL, src.Title)
	}
}

// writeYAML renders the record through its JSON form so key names and
// ordering match the file on disk.
func writeYAML(out io.Writer, rec *kyb.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("convert record: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return enc.Close()
}

// blockStyle clears the flow style JSON input leaves on every node.
func blockStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		n.Style = 0
	case yaml.ScalarNode:
		if n.Style == yaml.DoubleQuotedStyle {
			n.Style = 0
		}
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
