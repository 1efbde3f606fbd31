package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/srg/h64log/internal/resolver"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var listFormats = []string{formatTable, formatJSON, formatYAML}

func validateFormat(format string) error {
	if !slices.Contains(listFormats, format) {
		return fmt.Errorf("invalid format '%s': must be one of %v", format, listFormats)
	}
	return nil
}

// listEntry is one row of the --list output.
type listEntry struct {
	resolver.PeripheralRecord `yaml:",inline"`
	HeartRate                 bool `json:"heart_rate" yaml:"heart_rate"`
}

func listEntries(ranked []resolver.PeripheralRecord) []listEntry {
	entries := make([]listEntry, 0, len(ranked))
	for _, r := range ranked {
		if r.ServiceUUIDs == nil {
			r.ServiceUUIDs = []string{}
		}
		entries = append(entries, listEntry{PeripheralRecord: r, HeartRate: r.HasHeartRateService()})
	}
	return entries
}

// writeDeviceList prints ranked scan results: heart-rate devices first.
func writeDeviceList(w io.Writer, format string, ranked []resolver.PeripheralRecord) error {
	entries := listEntries(ranked)
	switch format {
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case formatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(entries); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return writeDeviceTable(w, entries)
	}
}

func writeDeviceTable(base io.Writer, entries []listEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(base, "No devices found.")
		return nil
	}

	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tHR\tSERVICES")
	for _, e := range entries {
		mark := ""
		if e.HeartRate {
			mark = "*HR*"
		}
		fmt.Fprintf(w, "%s\t%q\t%d dBm\t%s\t%s\n",
			e.Address, e.Name, e.RSSI, mark, strings.Join(e.ServiceUUIDs, ","))
	}
	return w.Flush()
}
