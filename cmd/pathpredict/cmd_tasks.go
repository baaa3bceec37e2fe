// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

func newTasksCmd(a *app) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the configured tasks with their resolved inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := a.cfg.HistorySize
			if cmd.Flags().Changed("size") {
				level = size
			}
			w, err := a.writer(cmd)
			if err != nil {
				return err
			}
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			return w.Tasks(tasks, level)
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "history size used for result file names (default from config)")
	return cmd
}
