package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/internal/picker"
	"github.com/wms-platform/pick-floor/internal/push"
)

const pickHelp = `Scan a code, or type a command:
  :list              show the pick list
  :pick [n] [qty]    record qty units (default 1) on item n
  :all [n]           pick the rest of item n
  :dec [n]           take one unit back from item n
  :qty [n]           enter a quantity for item n
  :short [n]         report item n short
  :edit [n]          correct item n's picked count
  :ok <answer>       answer the open dialog
  :count <qty>       confirm a bin count
  :skip <qty>        record a bin count and cancel replenishment
  :cancel            close the open dialog
  :release           give the unit back (:keep or :reset answers)
  :refresh           reload the unit from the server
  :quit              leave; unsent changes are kept for 'picker sync'
Item n defaults to the current item.`

func newPickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pick <unitId>",
		Short: "Claim a unit and pick it",
		Long:  "Claims the unit and reads scans and commands from stdin.\n\n" + pickHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPick(cmd, args[0])
		},
	}
}

func runPick(cmd *cobra.Command, unitID string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()
	out := cmd.OutOrStdout()

	session := picker.NewPickingSession(a.client.PickerID())
	session.SetMinScanLength(viper.GetInt(keyMinScanLength))
	if err := session.BeginClaim(unitID); err != nil {
		return err
	}
	view, err := a.client.Claim(ctx, unitID)
	if err != nil {
		return errors.New(session.ClaimFailed(err))
	}
	if err := session.ClaimSucceeded(view); err != nil {
		return errors.New(session.Notice())
	}

	syncer := picker.NewSyncer(a.client, store, domain.QueueFilterReady, a.logger)
	if err := syncer.Load(); err != nil {
		a.logger.WithError(err).Warn("Failed to load cached queue")
	}
	syncer.ApplyLocal(session.Units()...)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	dispatcher := picker.NewDispatcher(a.client, store, a.logger)
	g.Go(func() error { return dispatcher.Run(gctx) })

	refresh := make(chan struct{}, 1)
	versions := make(chan string, 1)
	pushClient := picker.NewPushClient(a.pushURL(), picker.PushOptions{
		OnConnect:        func() { signalRefresh(refresh) },
		OnQueueUpdated:   func(push.Message) { signalRefresh(refresh) },
		OnVersionChanged: func(v string) {
			select {
			case versions <- v:
			default:
			}
		},
	}, a.logger)
	g.Go(func() error { return pushClient.Run(gctx) })

	scans := make(chan string, 16)
	buffer := picker.NewScanBuffer(0, func(code string, _ picker.FlushReason) { scans <- code })
	defer buffer.Stop()
	lines := readInput(cmd.InOrStdin(), buffer)

	loop := &pickLoop{
		session: session,
		out:     out,
		submit: func(m *picker.Mutation) error {
			if err := dispatcher.Submit(m); err != nil {
				return err
			}
			syncer.ApplyLocal(session.Units()...)
			return nil
		},
		reload: func() (*picker.UnitView, error) {
			return a.client.GetUnit(gctx, unitID)
		},
	}
	printPickList(out, session)
	fmt.Fprintln(out, dimColor.Sprint("Type :help for commands"))

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			loop.command(line)
			if loop.quit {
				return nil
			}
		case code := <-scans:
			loop.scan(code)
		case r := <-dispatcher.Results():
			loop.result(r)
			if r.Mutation.Kind == picker.MutationRelease && r.Failure == nil {
				return nil
			}
		case <-refresh:
			if _, err := dispatcher.Resend(); err != nil {
				a.logger.WithError(err).Warn("Failed to resend pending changes")
			}
			active := session.ActiveUnitID()
			go func() { _, _ = syncer.Refresh(gctx, active) }()
		case v := <-versions:
			fmt.Fprintln(out, warnColor.Sprintf("Server updated to %s, restart when convenient", v))
		case <-gctx.Done():
			return nil
		}
	}
}

func signalRefresh(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// readInput sends command lines on the returned channel and feeds everything
// else to the scan buffer, as a wedge scanner would type it
func readInput(r io.Reader, buffer *picker.ScanBuffer) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			text := scanner.Text()
			if strings.HasPrefix(strings.TrimSpace(text), ":") {
				lines <- strings.TrimSpace(text)
				continue
			}
			for _, ch := range text {
				buffer.Key(ch)
			}
			buffer.Key('\n')
		}
	}()
	return lines
}

// pickLoop drives a session from operator input. All of its methods run on
// one goroutine.
type pickLoop struct {
	session *picker.PickingSession
	out     io.Writer
	submit  func(m *picker.Mutation) error
	reload  func() (*picker.UnitView, error)
	quit    bool
}

func (l *pickLoop) scan(code string) {
	result, m, err := l.session.Scan(code)
	switch {
	case err != nil:
		fmt.Fprintln(l.out, warnColor.Sprint(err.Error()))
	case result.Outcome == picker.NoMatch:
		fmt.Fprintln(l.out, errorColor.Sprintf("\aNo open item matches %s", result.Code))
	case result.Outcome == picker.Matched:
		fmt.Fprintln(l.out, okColor.Sprintf("Scanned %s", result.Code))
	}
	l.after(m, nil)
}

func (l *pickLoop) command(line string) {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return
	}
	s := l.session

	var (
		m   *picker.Mutation
		err error
	)
	switch fields[0] {
	case "help", "h":
		fmt.Fprintln(l.out, pickHelp)
		return
	case "list", "l":
		printPickList(l.out, s)
		return
	case "quit", "q":
		l.quit = true
		return
	case "pick", "p":
		var index, qty int
		if index, err = l.index(fields, 1); err == nil {
			if qty, err = intArg(fields, 2, 1); err == nil {
				m, err = s.Pick(index, qty, domain.PickMethodButton)
			}
		}
	case "all":
		var index int
		if index, err = l.index(fields, 1); err == nil {
			m, err = s.PickAll(index)
		}
	case "dec":
		var index int
		if index, err = l.index(fields, 1); err == nil {
			m, err = s.Decrement(index)
		}
	case "qty":
		var index int
		if index, err = l.index(fields, 1); err == nil {
			err = s.OpenQuantity(index)
		}
	case "short":
		var index int
		if index, err = l.index(fields, 1); err == nil {
			err = s.OpenShort(index)
		}
	case "edit":
		var index int
		if index, err = l.index(fields, 1); err == nil {
			err = s.OpenEdit(index)
		}
	case "ok":
		m, err = l.answer(fields[1:])
	case "count", "skip":
		var qty int
		if qty, err = intArg(fields, 1, -1); err == nil {
			if fields[0] == "count" {
				m, err = s.ConfirmCount(qty)
			} else {
				m, err = s.SkipCount(qty)
			}
		}
	case "cancel":
		s.DismissModal()
	case "release":
		m, err = s.RequestRelease()
	case "keep", "reset":
		m, err = s.ConfirmRelease(fields[0] == "reset")
	case "refresh":
		var view *picker.UnitView
		if view, err = l.reload(); err == nil {
			s.Reload(view)
			printPickList(l.out, s)
		}
	default:
		err = fmt.Errorf("unknown command %q, type :help", fields[0])
	}
	l.after(m, err)
}

// answer fills in the open dialog
func (l *pickLoop) answer(args []string) (*picker.Mutation, error) {
	switch l.session.Modal().(type) {
	case picker.QuantityModal:
		qty, err := intArg(args, 0, -1)
		if err != nil {
			return nil, err
		}
		return l.session.ConfirmQuantity(qty)
	case picker.EditQuantityModal:
		qty, err := intArg(args, 0, -1)
		if err != nil {
			return nil, err
		}
		return l.session.ConfirmEdit(qty)
	case picker.ShortPickModal:
		picked, err := intArg(args, 0, -1)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, errors.New("a short reason is required")
		}
		return l.session.ConfirmShort(picked, domain.ShortReason(args[1]), strings.Join(args[2:], " "))
	default:
		return nil, picker.ErrNoModal
	}
}

func (l *pickLoop) after(m *picker.Mutation, err error) {
	if err != nil {
		fmt.Fprintln(l.out, errorColor.Sprint(err.Error()))
	}
	if m != nil {
		if err := l.submit(m); err != nil {
			fmt.Fprintln(l.out, errorColor.Sprintf("Change kept locally: %v", err))
		}
		if m.Kind == picker.MutationUpdateItem {
			printPickList(l.out, l.session)
		}
	}
	l.report()
}

// result takes in a mirror outcome
func (l *pickLoop) result(r picker.Result) {
	switch {
	case r.Failure != nil:
		l.session.MirrorFailed(r.Failure)
	case r.Update != nil:
		l.session.ApplyUpdate(r.Update)
	case r.Count != nil:
		printCountResult(l.out, r.Count)
	case r.Unit != nil && r.Unit.Unit != nil:
		fmt.Fprintln(l.out, okColor.Sprintf("Released %s", r.Unit.Unit.UnitID))
	}
	l.report()
}

// report prints the session's notice and any dialog waiting for an answer
func (l *pickLoop) report() {
	if notice := l.session.Notice(); notice != "" {
		fmt.Fprintln(l.out, warnColor.Sprint(notice))
	}
	if modal := l.session.Modal(); modal != nil {
		printModal(l.out, modal)
	}
}

// index reads the item position at fields[i], defaulting to the current item
func (l *pickLoop) index(fields []string, i int) (int, error) {
	if i < len(fields) {
		return strconv.Atoi(fields[i])
	}
	current, ok := l.session.CurrentItem()
	if !ok {
		return 0, picker.ErrItemIndex
	}
	return current, nil
}

// intArg parses fields[i]; a negative def makes the argument required
func intArg(fields []string, i, def int) (int, error) {
	if i >= len(fields) {
		if def < 0 {
			return 0, errors.New("a quantity is required")
		}
		return def, nil
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", fields[i])
	}
	return n, nil
}
