// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cnotch/h265dec/config"
	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
	"github.com/spf13/cobra"
)

func main() {
	conf := config.Default()
	var confPath string

	rootCmd := &cobra.Command{
		Use:          config.Name,
		Short:        "H.265 picture management: parameter sets, SAO and output order",
		Version:      config.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.Load(confPath, cmd.Flags()); err != nil {
				return err
			}
			// 初始化日志
			conf.Log.InitLogger()
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&confPath, "config", "", "Set the JSON configuration file")
	conf.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(probeCommand(&conf), orderCommand(&conf), packCommand())

	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	if err := rootCmd.Execute(); err != nil {
		xlog.Error(err.Error())
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			xlog.Warnf("received signal %v, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}

// startRuntimeJob logs the process usage and the decode counters every
// interval seconds.
func startRuntimeJob(interval int) {
	if interval <= 0 {
		return
	}
	period := time.Duration(interval) * time.Second
	scheduler.PeriodFunc(period, period, func() {
		flow := stats.TotalFlow.GetSample()
		pics := stats.TotalPictures.GetSample()
		xlog.Infof("runtime: %s; in %d units/%dKB, out %dKB; pictures %d decoded, %d emitted, %d pending",
			stats.MeasureUsage(), flow.InUnits, flow.InBytes/1024, flow.OutBytes/1024,
			pics.Decoded, pics.Emitted, pics.Pending())
	}, "The task of logging the runtime usage")
}

// stopJobs 停止计划任务
func stopJobs() {
	for _, job := range scheduler.Jobs() {
		job.Cancel()
	}
}
