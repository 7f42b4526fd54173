package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/kmeta/internal/host"
	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
	"github.com/spf13/cobra"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List entities matching metadata filters",
	Long: `List entities whose metadata matches the given filters.

Pairs are written name=value with an optional operand suffix:
  --pair size=10:>=   --pair tag=go,rust:in   --pair title=%go%:like

--filter-json takes the whole filter as a JSON document instead:
  {"names":["tag"],"pairs":[{"name":"size","value":"10","operand":">="}],"pair_operator":"OR"}`,
	GroupID: "entities",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("names")
		values, _ := cmd.Flags().GetStringSlice("values")
		pairs, _ := cmd.Flags().GetStringArray("pair")
		or, _ := cmd.Flags().GetBool("or")
		insensitive, _ := cmd.Flags().GetBool("case-insensitive")
		filterJSON, _ := cmd.Flags().GetString("filter-json")

		f, err := buildFilter(filterJSON, names, values, pairs, or, insensitive)
		if err != nil {
			return err
		}

		var q query.EntityQuery
		q.Types, _ = cmd.Flags().GetStringSlice("type")
		q.Subtypes, _ = cmd.Flags().GetStringSlice("subtype")
		q.OwnerGUIDs, _ = cmd.Flags().GetInt64Slice("owner")
		q.SiteGUID, _ = cmd.Flags().GetInt64("site")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.Offset, _ = cmd.Flags().GetInt("offset")
		q.Count, _ = cmd.Flags().GetBool("count")

		entities, total, err := rt.svc.ListEntities(commandContext(), q, f)
		if err != nil {
			return err
		}
		if q.Count {
			if jsonOutput {
				return printJSON(map[string]any{"total": total})
			}
			fmt.Println(total)
			return nil
		}
		return printEntityList(entities, total)
	},
}

var entityCmd = &cobra.Command{
	Use:     "entity",
	Short:   "Manage host entities",
	GroupID: "entities",
}

var entityShowCmd = &cobra.Command{
	Use:   "show <guid>",
	Short: "Show an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		e, err := host.NewDBHost(rt.store).ResolveEntity(commandContext(), guid)
		if err != nil {
			return err
		}
		return printEntityList([]*model.Entity{e}, 1)
	},
}

var entityPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update an entity",
	Long: `Create or update an entity and announce the change.

Updating an entity's access level cascades it to the entity's metadata
unless its type is registered as independent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e := &model.Entity{}
		e.GUID, _ = cmd.Flags().GetInt64("guid")
		e.Type, _ = cmd.Flags().GetString("type")
		e.Subtype, _ = cmd.Flags().GetString("subtype")
		e.OwnerGUID, _ = cmd.Flags().GetInt64("owner")
		e.ContainerGUID, _ = cmd.Flags().GetInt64("container")
		e.SiteGUID, _ = cmd.Flags().GetInt64("site")
		access, _ := cmd.Flags().GetString("access")
		var err error
		if e.AccessID, err = parseAccess(access); err != nil {
			return err
		}
		if e.Type == "" {
			return fmt.Errorf("%w: --type is required", model.ErrInvalidArgument)
		}

		ctx := commandContext()
		h := host.NewDBHost(rt.store)
		kind := model.EventCreate
		if e.GUID != 0 {
			existing, err := rt.store.GetEntity(ctx, e.GUID)
			switch {
			case err == nil:
				if !h.CanEdit(ctx, existing) {
					return fmt.Errorf("update entity %d: %w", e.GUID, model.ErrForbidden)
				}
				kind = model.EventUpdate
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("get entity %d: %w", e.GUID, err)
			}
		}
		if e.OwnerGUID == 0 {
			e.OwnerGUID = h.CurrentPrincipal(ctx)
		}

		if err := rt.store.PutEntity(ctx, e); err != nil {
			return fmt.Errorf("put entity: %w", err)
		}
		if !rt.notifyEntity(ctx, kind, e) {
			rt.logger.Warn("entity notification vetoed after commit", "guid", e.GUID, "kind", kind)
		}
		if jsonOutput {
			return printJSON(e)
		}
		fmt.Printf("Saved entity %d (%s)\n", e.GUID, kind)
		return nil
	},
}

var syncAccessCmd = &cobra.Command{
	Use:   "sync-access <guid>",
	Short: "Copy an entity's access level onto its metadata",
	Long: `Copy an entity's access level onto all of its metadata.

This is the cascade that runs on every entity update; run it by hand after
changing entities outside kmeta. Independent types are left alone.`,
	GroupID: "entities",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		ctx := commandContext()
		h := host.NewDBHost(rt.store)
		e, err := h.ResolveEntity(ctx, guid)
		if err != nil {
			return err
		}
		if !h.CanEdit(ctx, e) {
			return fmt.Errorf("sync access of %d: %w", guid, model.ErrForbidden)
		}
		n, err := rt.svc.OnEntityUpdate(ctx, e)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"updated": n})
		}
		fmt.Printf("Updated %d records to %s\n", n, accessLabel(e.AccessID))
		return nil
	},
}

var independentCmd = &cobra.Command{
	Use:   "independent <type> [subtype]",
	Short: "Report whether an entity type keeps its own metadata access",
	Long: `Report whether metadata of an entity type keeps its own access level
when the entity is updated. Independent types are registered in the
policy file (KMETA_POLICY_FILE).`,
	GroupID: "entities",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var subtype string
		if len(args) == 2 {
			subtype = args[1]
		}
		independent := rt.svc.IsIndependent(args[0], subtype)
		if jsonOutput {
			return printJSON(map[string]any{"type": args[0], "subtype": subtype, "independent": independent})
		}
		if independent {
			fmt.Println("independent")
		} else {
			fmt.Println("cascades")
		}
		return nil
	},
}

func init() {
	entitiesCmd.Flags().StringSlice("names", nil, "metadata names that must be present")
	entitiesCmd.Flags().StringSlice("values", nil, "metadata values that must be present")
	entitiesCmd.Flags().StringArray("pair", nil, "name=value[:op] pair (repeatable)")
	entitiesCmd.Flags().Bool("or", false, "combine pairs with OR instead of AND")
	entitiesCmd.Flags().Bool("case-insensitive", false, "compare values case-insensitively")
	entitiesCmd.Flags().String("filter-json", "", "filter as JSON (replaces the other filter flags)")
	entitiesCmd.Flags().StringSlice("type", nil, "entity types")
	entitiesCmd.Flags().StringSlice("subtype", nil, "entity subtypes")
	entitiesCmd.Flags().Int64Slice("owner", nil, "owner guids")
	entitiesCmd.Flags().Int64("site", 0, "site guid (0 = any)")
	entitiesCmd.Flags().Int("limit", 10, "maximum number of entities")
	entitiesCmd.Flags().Int("offset", 0, "entities to skip")
	entitiesCmd.Flags().Bool("count", false, "print the number of matches only")

	entityPutCmd.Flags().Int64("guid", 0, "entity guid (0 creates a new entity)")
	entityPutCmd.Flags().String("type", "", "entity type (required)")
	entityPutCmd.Flags().String("subtype", "", "entity subtype")
	entityPutCmd.Flags().Int64("owner", 0, "owner guid (defaults to the acting principal)")
	entityPutCmd.Flags().Int64("container", 0, "container guid")
	entityPutCmd.Flags().Int64("site", 0, "site guid")
	entityPutCmd.Flags().String("access", "public", "access: private, logged-in, public, friends or a collection id")

	entityCmd.AddCommand(entityShowCmd)
	entityCmd.AddCommand(entityPutCmd)
}
