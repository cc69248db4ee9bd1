package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hush/internal/broker"
	"hush/internal/rules"
	"hush/internal/ruleset"
	"hush/pkg/bootstrap"
	"hush/pkg/cel"
	"hush/pkg/models"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage notification rules",
	}
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesImportCmd())
	return cmd
}

func compileRuleFile(path string) (models.RuleSet, *rules.Snapshot, error) {
	set, err := ruleset.NewFileProvider(path).Load(context.Background())
	if err != nil {
		return models.RuleSet{}, nil, err
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return models.RuleSet{}, nil, fmt.Errorf("failed to create expression evaluator: %w", err)
	}

	snap, err := rules.Compile(set, evaluator)
	if err != nil {
		return models.RuleSet{}, nil, err
	}
	return set, snap, nil
}

func rulesValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile a rule file without loading it",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snap, err := compileRuleFile(file)
			if err != nil {
				return fmt.Errorf("invalid rule file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules, version %d\n", file, len(snap.Rules), snap.Version)
			for _, r := range snap.Rules {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %s\n", r.ID(), r.Spec.Action)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to the rule file")
	cmd.MarkFlagRequired("file")
	return cmd
}

// rulesImportCmd replaces the PostgreSQL rule set with the content of a
// file, records the change and signals running instances to reload.
func rulesImportCmd() *cobra.Command {
	var (
		file      string
		changedBy string
		reason    string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored rule set with a rule file",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := compileRuleFile(file)
			if err != nil {
				return fmt.Errorf("invalid rule file: %w", err)
			}

			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			dbConnector := bootstrap.NewDatabaseConnector(cfg, log)
			db, err := dbConnector.InitPostgreSQL(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return fmt.Errorf("rules import needs database.postgres.host")
			}
			defer db.Close()

			provider := ruleset.NewPostgresProvider(db)
			previous, err := provider.Load(ctx)
			if err != nil {
				return err
			}

			version, err := provider.Replace(ctx, set.Rules)
			if err != nil {
				return err
			}

			if err := ruleset.NewAuditLogger(db).LogRuleChange(ctx, ruleset.AuditLogEntry{
				Action:       models.ActionUpdate,
				Version:      version,
				OldValue:     previous.Rules,
				NewValue:     set.Rules,
				ChangedBy:    changedBy,
				ChangeReason: reason,
			}); err != nil {
				log.ErrorwCtx(ctx, "Failed to record rule change", "error", err, "version", version)
			}

			producer, err := broker.NewProducer(cfg.Broker, log)
			if err != nil {
				log.WarnwCtx(ctx, "Rules imported but reload signal not sent", "error", err)
			} else if producer != nil {
				defer producer.Close()
				notifier := ruleset.NewNotifier(producer, cfg.Broker.Topics.ConfigUpdate)
				if err := notifier.PublishRulesUpdated(ctx, models.ActionUpdate, version, changedBy); err != nil {
					log.WarnwCtx(ctx, "Rules imported but reload signal not sent", "error", err)
				}
			}

			log.InfowCtx(ctx, "Rules imported",
				"file", file,
				"rules", len(set.Rules),
				"version", version,
				"previous_version", previous.Version,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to the rule file")
	cmd.Flags().StringVar(&changedBy, "changed-by", defaultChangedBy(), "Who made the change")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the rules changed")
	cmd.MarkFlagRequired("file")
	return cmd
}

func defaultChangedBy() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "cli"
}
