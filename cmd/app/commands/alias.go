package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	validation "github.com/jellydator/validation"

	"github.com/allisson/topogate/internal/alias"
	customValidation "github.com/allisson/topogate/internal/validation"
)

// AliasStore is the subset of the AliasService used by the alias commands.
type AliasStore interface {
	GetAliasValue(ctx context.Context, alias string) (string, error)
	SetAlias(ctx context.Context, alias, value string) error
	RemoveAlias(ctx context.Context, alias string) error
	ListAliases(ctx context.Context) ([]string, error)
}

// RunAliasSet stores value under name, scoped to topology when it is not empty.
func RunAliasSet(
	ctx context.Context,
	aliases AliasStore,
	logger *slog.Logger,
	out io.Writer,
	name, topology, value string,
) error {
	key, err := aliasKey(name, topology)
	if err != nil {
		return err
	}
	if err := validation.Validate(value, validation.Required, customValidation.NotBlank); err != nil {
		return fmt.Errorf("invalid alias value: %w", err)
	}

	if err := aliases.SetAlias(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set alias: %w", err)
	}

	logger.Info("alias set", slog.String("alias", key))
	_, err = fmt.Fprintf(out, "Alias %s set\n", key)
	return err
}

// RunAliasGet prints the value stored under name.
func RunAliasGet(ctx context.Context, aliases AliasStore, out io.Writer, name, topology string) error {
	key, err := aliasKey(name, topology)
	if err != nil {
		return err
	}

	value, err := aliases.GetAliasValue(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get alias: %w", err)
	}
	_, err = fmt.Fprintln(out, value)
	return err
}

// RunAliasRemove deletes name.
func RunAliasRemove(
	ctx context.Context,
	aliases AliasStore,
	logger *slog.Logger,
	out io.Writer,
	name, topology string,
) error {
	key, err := aliasKey(name, topology)
	if err != nil {
		return err
	}

	if err := aliases.RemoveAlias(ctx, key); err != nil {
		return fmt.Errorf("failed to remove alias: %w", err)
	}

	logger.Info("alias removed", slog.String("alias", key))
	_, err = fmt.Fprintf(out, "Alias %s removed\n", key)
	return err
}

// RunAliasList prints the stored alias names in text or JSON format.
func RunAliasList(ctx context.Context, aliases AliasStore, out io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	names, err := aliases.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list aliases: %w", err)
	}
	if names == nil {
		names = []string{}
	}

	if format == "json" {
		return writeJSON(out, map[string]any{"aliases": names})
	}
	if len(names) == 0 {
		_, err = fmt.Fprintln(out, "No aliases found")
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	return nil
}

func aliasKey(name, topology string) (string, error) {
	if err := validation.Validate(name, validation.Required, customValidation.AliasName); err != nil {
		return "", fmt.Errorf("invalid alias name: %w", err)
	}
	if topology == "" {
		return name, nil
	}
	if err := validation.Validate(topology, customValidation.TopologyName); err != nil {
		return "", fmt.Errorf("invalid topology name: %w", err)
	}
	return alias.TopologyAlias(topology, name), nil
}
