/*
 * Copyright (c) 2018. LuCongyao <6congyao@gmail.com> .
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this work except in compliance with the License.
 * You may obtain a copy of the License in the LICENSE file, or at:
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"github.com/spf13/cobra"

	"kiln/pkg/config"
)

var dumpFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the config file and print it with its defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		kc, err := config.Load(configPath)
		if err != nil {
			return err
		}
		format := config.FormatOf(configPath)
		if dumpFormat != "" {
			format = config.Format(dumpFormat)
		}
		return config.Dump(kc, cmd.OutOrStdout(), format)
	},
}

func init() {
	configCmd.Flags().StringVarP(&dumpFormat, "output", "o", "", "output format, json or yaml")
	rootCmd.AddCommand(configCmd)
}
