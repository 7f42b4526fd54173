package main

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/kmeta/internal/metadata"
	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <guid> <name> [value]",
	Short: "Set metadata on an entity (no value unsets it)",
	Long: `Set metadata on an entity.

A single-valued name that is already set is updated in place. Without a
value the existing record is deleted. With --multiple a new record is
always added alongside any existing ones.`,
	GroupID: "metadata",
	Args:    cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		p := metadata.CreateParams{EntityGUID: guid, Name: args[1]}
		if len(args) == 3 {
			p.Value = &args[2]
		}
		vt, _ := cmd.Flags().GetString("type")
		p.ValueType = model.ValueType(vt)
		if vt != "" && !p.ValueType.IsValid() {
			return fmt.Errorf("%w: unknown value type %q", model.ErrInvalidArgument, vt)
		}
		p.OwnerGUID, _ = cmd.Flags().GetInt64("owner")
		p.AllowMultiple, _ = cmd.Flags().GetBool("multiple")
		access, _ := cmd.Flags().GetString("access")
		if p.AccessID, err = parseAccess(access); err != nil {
			return err
		}

		ctx := commandContext()
		id, err := rt.svc.Create(ctx, p)
		if err != nil {
			return err
		}
		if id == 0 {
			if jsonOutput {
				return printJSON(map[string]any{"deleted": true})
			}
			fmt.Printf("Unset %s on %d\n", style.Name(p.Name), guid)
			return nil
		}
		md, err := rt.svc.Get(ctx, id)
		if err != nil {
			return err
		}
		return printMetadata(md)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id> [value]",
	Short: "Update a metadata record",
	Long: `Update a metadata record by id.

Fields are changed with --set field=value; writable fields are value,
value_type, owner_guid and access_id. A positional value is shorthand for
--set value=<value>.`,
	GroupID: "metadata",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		sets, _ := cmd.Flags().GetStringArray("set")
		if len(args) == 2 {
			sets = append(sets, "value="+args[1])
		}
		if len(sets) == 0 {
			return fmt.Errorf("%w: nothing to update", model.ErrInvalidArgument)
		}

		ctx := commandContext()
		md, err := rt.svc.Get(ctx, id)
		if err != nil {
			return err
		}
		typeSet, valueSet := false, false
		for _, s := range sets {
			field, value, ok := strings.Cut(s, "=")
			if !ok {
				return fmt.Errorf("%w: --set %q must look like field=value", model.ErrInvalidArgument, s)
			}
			if field == "name" {
				return fmt.Errorf("%w: %s cannot be changed", model.ErrInvalidArgument, field)
			}
			if err := md.SetField(field, value); err != nil {
				return err
			}
			typeSet = typeSet || field == "value_type"
			valueSet = valueSet || field == "value"
		}
		hint := md.ValueType
		if valueSet && !typeSet {
			// A new value is re-detected unless the caller pinned a type.
			hint = ""
		}

		err = rt.svc.Update(ctx, id, metadata.UpdateParams{
			Name:      md.Name,
			Value:     md.Value,
			ValueType: hint,
			OwnerGUID: md.OwnerGUID,
			AccessID:  md.AccessID,
		})
		if err != nil {
			return err
		}
		updated, err := rt.svc.Get(ctx, id)
		if err != nil {
			return err
		}
		return printMetadata(updated)
	},
}

var getCmd = &cobra.Command{
	Use:     "get <guid> <name>",
	Short:   "Print the values of a metadata name on an entity",
	GroupID: "metadata",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		records, err := rt.svc.GetByName(commandContext(), guid, args[1])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("%s on %d: %w", args[1], guid, model.ErrNotFound)
		}
		values := model.Values(records)
		if jsonOutput {
			if len(values) == 1 {
				return printJSON(values[0])
			}
			return printJSON(values)
		}
		for i, v := range values {
			fmt.Println(style.Value(v, records[i].ValueType))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show a metadata record",
	GroupID: "metadata",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		md, err := rt.svc.Get(commandContext(), id)
		if err != nil {
			return err
		}
		if field, _ := cmd.Flags().GetString("field"); field != "" {
			v, ok := md.Field(field)
			if !ok {
				return fmt.Errorf("%w: unknown field %q", model.ErrInvalidArgument, field)
			}
			if jsonOutput {
				return printJSON(v)
			}
			fmt.Println(v)
			return nil
		}
		return printMetadata(md)
	},
}

var listCmd = &cobra.Command{
	Use:     "list <guid>",
	Short:   "List the metadata on an entity",
	GroupID: "metadata",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		records, err := rt.svc.GetForEntity(commandContext(), guid)
		if err != nil {
			return err
		}
		return printMetadataList(records)
	},
}

var findCmd = &cobra.Command{
	Use:     "find",
	Short:   "Find metadata across entities",
	GroupID: "metadata",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var o metadata.FindOptions
		o.Name, _ = cmd.Flags().GetString("name")
		o.Value, _ = cmd.Flags().GetString("value")
		o.EntityType, _ = cmd.Flags().GetString("type")
		o.EntitySubtype, _ = cmd.Flags().GetString("subtype")
		o.SiteGUID, _ = cmd.Flags().GetInt64("site")
		o.Limit, _ = cmd.Flags().GetInt("limit")
		o.Offset, _ = cmd.Flags().GetInt("offset")
		o.OrderBy, _ = cmd.Flags().GetString("sort")

		records, err := rt.svc.Find(commandContext(), o)
		if err != nil {
			return err
		}
		return printMetadataList(records)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Short:   "Delete metadata records by id",
	GroupID: "metadata",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext()
		for _, arg := range args {
			id, err := parseGUID(arg)
			if err != nil {
				return err
			}
			if err := rt.svc.Delete(ctx, id); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Printf("Deleted %s\n", arg)
			}
		}
		if jsonOutput {
			return printJSON(map[string]any{"deleted": len(args)})
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <guid> <name> [value]",
	Short:   "Delete every record of a name on an entity",
	GroupID: "metadata",
	Args:    cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		var value string
		if len(args) == 3 {
			value = args[2]
		}
		n, err := rt.svc.Remove(commandContext(), guid, args[1], value)
		if err != nil {
			return err
		}
		return printCount(n, "Removed")
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear <guid>",
	Short:   "Delete all metadata on an entity",
	GroupID: "metadata",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		n, err := rt.svc.Clear(commandContext(), guid)
		if err != nil {
			return err
		}
		return printCount(int(n), "Cleared")
	},
}

var clearOwnerCmd = &cobra.Command{
	Use:     "clear-owner <owner-guid>",
	Short:   "Delete all metadata owned by a principal",
	GroupID: "metadata",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		n, err := rt.svc.ClearByOwner(commandContext(), owner)
		if err != nil {
			return err
		}
		return printCount(n, "Cleared")
	},
}

func printCount(n int, verb string) error {
	if jsonOutput {
		return printJSON(map[string]any{"deleted": n})
	}
	fmt.Printf("%s %d records\n", verb, n)
	return nil
}

func init() {
	setCmd.Flags().String("type", "", "value type: text, integer or boolean (detected when empty)")
	setCmd.Flags().Int64("owner", 0, "owner guid (defaults to the acting principal)")
	setCmd.Flags().String("access", "private", "access: private, logged-in, public, friends or a collection id")
	setCmd.Flags().Bool("multiple", false, "add a record instead of replacing the existing one")

	updateCmd.Flags().StringArray("set", nil, "set a field (repeatable, e.g. --set access_id=2)")

	showCmd.Flags().String("field", "", "print a single field")

	findCmd.Flags().String("name", "", "metadata name")
	findCmd.Flags().String("value", "", "metadata value")
	findCmd.Flags().String("type", "", "entity type")
	findCmd.Flags().String("subtype", "", "entity subtype")
	findCmd.Flags().Int64("site", 0, "site guid (0 = any)")
	findCmd.Flags().Int("limit", metadata.DefaultFindLimit, "maximum number of records")
	findCmd.Flags().Int("offset", 0, "records to skip")
	findCmd.Flags().String("sort", "", "sort field, prefix with - for descending (e.g. -time_created)")
}
