package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/erazemk/stockscan/internal/labels"
	"github.com/erazemk/stockscan/internal/scan"
)

const helpText = `Scan or type a barcode and press Enter. Commands:
  :shelf <id|name>        choose shelf (transfer: source, or destination on step "to")
  :step from|scan|to      move between transfer steps
  :target units|sets|both what a scan counts
  :qty <n> <units> [sets] change quantities of line n
  :rm <n>                 remove line n
  :undo                   remove the most recent line
  :list                   show the queue
  :commit                 create movements for pending lines
  :end                    end the session and quit
  :quit                   quit, keeping the session for later
  :help                   show this help`

// Station reads scanner input line by line and drives a scan Controller.
// Wedge scanners type the barcode followed by Enter, so every line is a scan.
type Station struct {
	ctl     *scan.Controller
	console *Console
}

// NewStation returns a station for ctl that prints to console.
func NewStation(ctl *scan.Controller, console *Console) *Station {
	return &Station{ctl: ctl, console: console}
}

// Run processes lines from in until EOF, :end or :quit.
func (st *Station) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		quit, err := st.Handle(ctx, sc.Text())
		if err != nil {
			st.console.Errorf("%v", err)
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}

// Handle processes one input line. It reports whether the station should stop.
func (st *Station) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, st.scan(ctx, line)
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "h":
		st.console.printf(nil, "%s\n", helpText)
	case "list", "ls":
		if s := st.ctl.Session(); s != nil {
			st.console.PrintSession(s)
		}
	case "shelf":
		if len(args) == 0 {
			return false, errors.New("usage: :shelf <id|name>")
		}
		return false, st.setShelf(ctx, strings.Join(args, " "), false)
	case "step":
		if len(args) != 1 {
			return false, errors.New("usage: :step from|scan|to")
		}
		if _, err := st.ctl.SetTransferStep(ctx, args[0]); err != nil {
			return false, err
		}
		st.console.Infof("transfer step: %s", args[0])
	case "target":
		if len(args) != 1 {
			return false, errors.New("usage: :target units|sets|both")
		}
		if _, err := st.ctl.SetScanTarget(ctx, args[0]); err != nil {
			return false, err
		}
		st.console.Infof("scan target: %s", args[0])
	case "qty":
		return false, st.setQuantity(ctx, args)
	case "rm":
		id, err := st.lineID(args)
		if err != nil {
			return false, err
		}
		return false, st.ctl.RemoveQueueItem(ctx, id)
	case "undo":
		it, err := st.ctl.UndoLastScan(ctx)
		if err != nil {
			return false, err
		}
		st.console.Infof("removed %s", it.Barcode)
	case "commit":
		result, err := st.ctl.ProcessQueue(ctx)
		if err != nil {
			return false, err
		}
		st.console.PrintBatch(result)
	case "end":
		return true, st.ctl.End(ctx)
	case "quit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, try :help", cmd)
	}
	return false, nil
}

func (st *Station) scan(ctx context.Context, value string) error {
	if id, ok := labels.ParseShelf(value); ok {
		return st.setShelf(ctx, strconv.FormatInt(id, 10), true)
	}
	out, err := st.ctl.HandleCapture(ctx, value)
	if err != nil {
		return err
	}
	if out == nil {
		st.console.Errorf("ignored %q: too short for a barcode", value)
	}
	return nil
}

func (st *Station) setShelf(ctx context.Context, ref string, fromLabel bool) error {
	catalog := st.ctl.Catalog()
	var id int64
	var name string

	if n, err := strconv.ParseInt(ref, 10, 64); err == nil {
		sh, ok := catalog.Shelf(n)
		if !ok {
			return fmt.Errorf("shelf %d not found", n)
		}
		id, name = sh.ID, sh.Name
	} else {
		for _, sh := range catalog.Shelves() {
			if strings.EqualFold(sh.Name, ref) {
				id, name = sh.ID, sh.Name
				break
			}
		}
		if id == 0 {
			return fmt.Errorf("shelf %q not found", ref)
		}
	}

	apply := st.ctl.SetActiveShelf
	if fromLabel {
		apply = st.ctl.ScanShelfLabel
	}
	s, err := apply(ctx, id, name)
	if err != nil {
		return err
	}
	st.console.Infof("shelf: %s", name)
	if s.TransferStep != "" {
		st.console.Infof("transfer step: %s", s.TransferStep)
	}
	return nil
}

func (st *Station) setQuantity(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: :qty <n> <units> [sets]")
	}
	id, err := st.lineID(args[:1])
	if err != nil {
		return err
	}

	var patch scan.ItemPatch
	units, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid units %q", args[1])
	}
	patch.Units = &units
	if len(args) == 3 {
		sets, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid sets %q", args[2])
		}
		patch.Sets = &sets
	}

	_, err = st.ctl.UpdateQueueItem(ctx, id, patch)
	return err
}

// lineID maps a 1-based line number from :list to a queue item ID.
func (st *Station) lineID(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected a line number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid line number %q", args[0])
	}
	s := st.ctl.Session()
	if s == nil {
		return "", scan.ErrNoSession
	}
	if n < 1 || n > len(s.Queue) {
		return "", fmt.Errorf("no line %d", n)
	}
	return s.Queue[n-1].ID, nil
}
