package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/ui"
)

// valueWidth caps the VALUE column so long values do not wrap the table.
func valueWidth() int {
	return max(ui.Width(os.Stdout, 100)-60, 20)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printMetadata(md *model.Metadata) error {
	if jsonOutput {
		return printJSON(md)
	}
	fmt.Printf("ID:          %d\n", md.ID)
	fmt.Printf("Entity:      %d\n", md.EntityGUID)
	fmt.Printf("Name:        %s\n", style.Name(md.Name))
	fmt.Printf("Value:       %s\n", style.Value(md.Value, md.ValueType))
	fmt.Printf("Type:        %s\n", md.ValueType)
	fmt.Printf("Owner:       %d\n", md.OwnerGUID)
	fmt.Printf("Access:      %s\n", accessLabel(md.AccessID))
	if !md.CreatedAt.IsZero() {
		fmt.Printf("Created At:  %s\n", md.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printMetadataList(records []*model.Metadata) error {
	if jsonOutput {
		if records == nil {
			records = []*model.Metadata{}
		}
		return printJSON(records)
	}
	writeMetadataTable(os.Stdout, records, valueWidth())
	return nil
}

func writeMetadataTable(out io.Writer, records []*model.Metadata, width int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTITY\tNAME\tVALUE\tTYPE\tOWNER\tACCESS")
	for _, md := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			style.Muted(strconv.FormatInt(md.ID, 10)),
			md.EntityGUID,
			style.Name(md.Name),
			style.Value(ui.Truncate(md.Value, width), md.ValueType),
			md.ValueType,
			style.Muted(strconv.FormatInt(md.OwnerGUID, 10)),
			accessLabel(md.AccessID),
		)
	}
	w.Flush()
}

func printEntityList(entities []*model.Entity, total int) error {
	if jsonOutput {
		return printJSON(map[string]any{"entities": entities, "total": total})
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUID\tTYPE\tSUBTYPE\tOWNER\tACCESS\tCREATED")
	for _, e := range entities {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			e.GUID, e.Type, e.Subtype, e.OwnerGUID, accessLabel(e.AccessID),
			e.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	fmt.Printf("\n%d entities\n", total)
	return nil
}

func accessLabel(id int) string {
	switch id {
	case model.AccessPrivate:
		return "private"
	case model.AccessLoggedIn:
		return "logged-in"
	case model.AccessPublic:
		return "public"
	case model.AccessFriends:
		return "friends"
	}
	return strconv.Itoa(id)
}

// parseAccess accepts an access label or a numeric collection id.
func parseAccess(s string) (int, error) {
	switch s {
	case "private":
		return model.AccessPrivate, nil
	case "logged-in", "loggedin":
		return model.AccessLoggedIn, nil
	case "public":
		return model.AccessPublic, nil
	case "friends":
		return model.AccessFriends, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown access %q", model.ErrInvalidArgument, s)
	}
	return id, nil
}
