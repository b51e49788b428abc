package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/internal/picker"
)

func newQueueCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the pick queue",
		Long: `Fetches the queue and merges it with the device cache. When the
server cannot be reached the cached queue is shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			filter := domain.QueueFilterReady
			if all {
				filter = domain.QueueFilterAll
			}
			syncer := picker.NewSyncer(a.client, store, filter, a.logger)
			if err := syncer.Load(); err != nil {
				return err
			}

			units, err := syncer.Refresh(commandContext(cmd), "")
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), warnColor.Sprint("Offline, showing the cached queue"))
				units = syncer.Queue()
			}
			printQueue(cmd.OutOrStdout(), units)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include units claimed by other pickers and on hold")
	return cmd
}

func newNextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next unit to pick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			unit, err := a.client.GrabNext(commandContext(cmd))
			if err != nil {
				return err
			}
			printQueue(cmd.OutOrStdout(), []*domain.WorkUnit{unit})
			return nil
		},
	}
}

func newReleaseCommand() *cobra.Command {
	var reset, force bool
	cmd := &cobra.Command{
		Use:   "release <unitId>",
		Short: "Release a claimed unit",
		Long: `Releases a unit this picker holds. With --force a lead releases a
unit held by anyone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			var view *picker.UnitView
			if force {
				view, err = a.client.ForceRelease(ctx, uuid.NewString(), args[0], reset)
			} else {
				view, err = a.client.Release(ctx, uuid.NewString(), args[0], reset)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprintf("Released %s", view.Unit.UnitID))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "discard picked progress")
	cmd.Flags().BoolVar(&force, "force", false, "release a unit held by another picker")
	return cmd
}

func newExceptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exceptions",
		Short: "List units with open short-pick exceptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			units, err := a.client.ListExceptions(commandContext(cmd))
			if err != nil {
				return err
			}
			printExceptions(cmd.OutOrStdout(), units)
			return nil
		},
	}
}

func newResolveCommand() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "resolve <unitId> <ship_partial|hold|resolved|cancelled>",
		Short: "Resolve a unit's exception",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution := domain.Resolution(args[1])
			if !resolution.IsValid() {
				return fmt.Errorf("unknown resolution %q", args[1])
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			unit, err := a.client.ResolveException(commandContext(cmd), uuid.NewString(), args[0], resolution, note)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprintf("%s resolved as %s, unit is %s", unit.UnitID, resolution, unit.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note recorded with the resolution")
	return cmd
}

func newTimelineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <unitId>",
		Short: "Show a unit's audit timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			entries, err := a.client.Timeline(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			printTimeline(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func newSyncCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send changes still pending on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
			defer cancel()

			dispatcher := picker.NewDispatcher(a.client, store, a.logger)
			go func() { _ = dispatcher.Run(ctx) }()

			sent, err := dispatcher.Resend()
			if err != nil {
				return err
			}
			failed := 0
			for i := 0; i < sent; i++ {
				select {
				case r := <-dispatcher.Results():
					if r.Failure != nil {
						failed++
						fmt.Fprintln(cmd.ErrOrStderr(), warnColor.Sprint(r.Failure.Error()))
					}
				case <-ctx.Done():
					return fmt.Errorf("sync interrupted with %d of %d changes outstanding: %w", sent-i, sent, ctx.Err())
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprintf("Sent %d pending changes, %d failed", sent, failed))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up after this long")
	return cmd
}
