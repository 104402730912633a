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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kiln/pkg/bootstrap"
	"kiln/pkg/config"
	"kiln/pkg/log"
	"kiln/pkg/server"
)

var serveFlags struct {
	root string
	echo bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the listeners of the config file",
	Long: `Serve the listeners of the config file until SIGINT or SIGTERM.

Files under --root are streamed, /healthz reports the server state and
connections asking for "Upgrade: echo" get their bytes echoed back.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.root, "root", "", "directory of the static files, none when empty")
	serveCmd.Flags().BoolVar(&serveFlags.echo, "echo", true, "accept the echo upgrade")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	kc, err := config.Load(configPath)
	if err != nil {
		return err
	}
	k, err := bootstrap.NewKiln(kc)
	if err != nil {
		return err
	}

	srv := k.Server()
	if err := registerHandlers(srv, serveFlags.root, serveFlags.echo); err != nil {
		k.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- k.Start(ctx) }()

	server.OnShutdown(k.Stop)
	select {
	case err := <-errc:
		k.Stop()
		return err
	case <-waitSignal(ctx):
	}

	if code := server.ExecuteShutdownCallbacks("signal"); code != 0 {
		return fmt.Errorf("shutdown failed with code %d", code)
	}
	err = <-errc
	log.DefaultLogger.Infof("kiln stopped")
	log.DefaultLogger.Close()
	return err
}

func waitSignal(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		server.WaitSignal(ctx)
		close(done)
	}()
	return done
}

func registerHandlers(srv *server.Server, root string, echo bool) error {
	if err := srv.Handle(healthHandler{srv: srv}); err != nil {
		return err
	}
	if root != "" {
		static, err := newStaticHandler(root)
		if err != nil {
			return err
		}
		if err := srv.Handle(static); err != nil {
			return err
		}
	}
	if echo {
		if err := srv.RegisterUpgrade("echo", server.UpgradeHandlerFunc(serveEcho)); err != nil {
			return err
		}
	}
	return nil
}
