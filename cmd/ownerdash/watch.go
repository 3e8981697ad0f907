package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ownerdash/internal/config"
	"ownerdash/internal/live"
	"ownerdash/internal/model"
	"ownerdash/internal/reconcile"
	"ownerdash/internal/views"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "watch <view>",
		Short:     "Follow one order view and log every change",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{views.NameActive, views.NameDelivered, views.NameCancelled, views.NameTransactions, views.NameIncoming},
		RunE:      runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	def, ok := findOrderView(args[0])
	if !ok {
		return fmt.Errorf("unknown view %q", args[0])
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hook := live.WithOutcomeHook(func(out reconcile.Outcome, r reconcile.Record) {
		log.Info().Str("view", def.Name).Str("id", r.RecordID()).Str("status", r.RecordStatus()).Stringer("outcome", out).Msg("update")
	})
	v, err := a.orderView(def, hook)
	if err != nil {
		return err
	}
	if err := v.Open(ctx); err != nil {
		return err
	}
	defer v.Close()
	a.replay(ctx)

	<-ctx.Done()
	st := v.Stats()
	log.Info().Int("records", st.Records).Uint64("inserted", st.Inserted).Uint64("updated", st.Updated).
		Uint64("removed", st.Removed).Uint64("ignored", st.Ignored).Msg("watch finished")
	return nil
}

func findOrderView(name string) (views.Definition[model.Order], bool) {
	for _, def := range views.OrderViews() {
		if def.Name == name {
			return def, true
		}
	}
	return views.Definition[model.Order]{}, false
}
