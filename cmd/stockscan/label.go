package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/erazemk/stockscan/internal/labels"
	"github.com/erazemk/stockscan/internal/store"
)

func newLabelCommand(root *rootOptions) *cobra.Command {
	var output string
	var size int

	cmd := &cobra.Command{
		Use:   "label (product|shelf) <id>",
		Short: "Write a printable label as PNG",
		Long: `Write a Code128 label for a product (its barcode, or its code when it has
none) or a QR label for a shelf. Scanning a shelf label during a session
selects that shelf.

Example:
  stockscan label product 12 -o bolt.png
  stockscan label shelf 3 --size 512`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"product", "shelf"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid id %q", args[1])
			}
			if output == "" {
				output = fmt.Sprintf("%s-%d.png", args[0], id)
			}
			return writeLabel(cmd.Context(), root, args[0], id, size, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <kind>-<id>.png)")
	cmd.Flags().IntVar(&size, "size", labels.DefaultQRSize, "QR label size in pixels")
	return cmd
}

func writeLabel(ctx context.Context, root *rootOptions, kind string, id int64, size int, output string) error {
	database, err := openDatabase(root.cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	var data []byte
	switch kind {
	case "product":
		p, err := store.GetProduct(ctx, database, id)
		if err != nil {
			return err
		}
		if p == nil || p.DeletedAt != nil {
			return fmt.Errorf("product %d not found", id)
		}
		value := p.Barcode
		if value == "" {
			value = p.Code
		}
		if data, err = labels.ProductPNG(value); err != nil {
			return err
		}
	case "shelf":
		s, err := store.GetShelf(ctx, database, id)
		if err != nil {
			return err
		}
		if s == nil || s.DeletedAt != nil {
			return fmt.Errorf("shelf %d not found", id)
		}
		if data, err = labels.ShelfPNG(id, size); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown label kind %q: must be product or shelf", kind)
	}

	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing label: %w", err)
	}
	fmt.Printf("Label written: %s\n", output)
	return nil
}
