/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/tlsutil"
)

const (
	Name = "gatewayctl"

	flagURL        = "url"
	flagToken      = "token"
	flagAPIVersion = "api-version"
	flagWait       = "wait"
	flagInterval   = "interval"
	flagTimeout    = "timeout"
	flagCAFile     = "ca-file"
)

var (
	Version        = "dev" //nolint:gochecknoglobals // set by ldflags
	CommitSHA      = "n/a" //nolint:gochecknoglobals // set by ldflags
	BuildTimestamp = "n/a" //nolint:gochecknoglobals // set by ldflags
)

var ErrMissingToken = errors.New("an auth token is required: set --token or VLAB_TOKEN")

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. Flags may also be set from VLAB_URL, VLAB_TOKEN and
// VLAB_GATEWAY_API_VERSION.
func newRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           Name,
		Short:         "Manage the default gateway of your lab",
		Version:       fmt.Sprintf("%s (%s) %s", Version, CommitSHA, BuildTimestamp),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String(flagURL, "https://localhost", "base URL of the lab API")
	pf.String(flagToken, "", "auth token sent in the X-Auth header")
	pf.String(flagAPIVersion, "2", "API version, 1 or 2")
	pf.Bool(flagWait, true, "wait for the task to complete")
	pf.Duration(flagInterval, 2*time.Second, "interval between two task status checks")
	pf.Duration(flagTimeout, 30*time.Minute, "maximum time to wait for the task")
	pf.String(flagCAFile, "", "PEM bundle the API certificate is verified against, instead of the system roots")

	_ = v.BindPFlags(pf)
	_ = v.BindEnv(flagURL, "VLAB_URL")
	_ = v.BindEnv(flagToken, "VLAB_TOKEN")
	_ = v.BindEnv(flagAPIVersion, "VLAB_GATEWAY_API_VERSION")

	root.AddCommand(
		newShowCommand(v),
		newCreateCommand(v),
		newDeleteCommand(v),
		newTaskCommand(v),
		newHealthcheckCommand(v),
	)

	return root
}

func newShowCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show your default gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFrom(v, true)
			if err != nil {
				return err
			}

			if describe, _ := cmd.Flags().GetBool("describe"); describe {
				resp, err := c.do(cmd.Context(), http.MethodGet, c.gatewayPath("?describe=true"), nil)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), resp.Raw)
			}

			return runJob(cmd, v, c, http.MethodGet, nil)
		},
	}

	cmd.Flags().Bool("describe", false, "print the JSON schema of create requests instead")

	return cmd
}

func newCreateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Deploy your default gateway",
		Example: "  gatewayctl create --wan frontEnd --lan alice_lab",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFrom(v, true)
			if err != nil {
				return err
			}

			wan, _ := cmd.Flags().GetString("wan")
			lan, _ := cmd.Flags().GetString("lan")

			return runJob(cmd, v, c, http.MethodPost, map[string]string{"wan": wan, "lan": lan})
		},
	}

	cmd.Flags().String("wan", "", "network the gateway's WAN interface connects to")
	cmd.Flags().String("lan", "", "network the gateway's LAN interface connects to")
	_ = cmd.MarkFlagRequired("wan")
	_ = cmd.MarkFlagRequired("lan")

	return cmd
}

func newDeleteCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Destroy your default gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFrom(v, true)
			if err != nil {
				return err
			}

			return runJob(cmd, v, c, http.MethodDelete, nil)
		},
	}
}

func newTaskCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFrom(v, true)
			if err != nil {
				return err
			}

			if !v.GetBool(flagWait) {
				resp, _, err := c.task(cmd.Context(), args[0])
				if resp != nil {
					if printErr := printJSON(cmd.OutOrStdout(), resp.Raw); printErr != nil {
						return printErr
					}
				}

				return err
			}

			return await(cmd, v, c, args[0])
		},
	}
}

func newHealthcheckCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the API is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFrom(v, false)
			if err != nil {
				return err
			}

			resp, err := c.do(cmd.Context(), http.MethodGet, "/api/1/inf/gateway/healthcheck", nil)
			if err != nil {
				return err
			}

			if resp.Code != http.StatusOK {
				return errors.Join(fmt.Errorf("%d", resp.Code), ErrResponse)
			}

			return printJSON(cmd.OutOrStdout(), resp.Raw)
		},
	}
}

func clientFrom(v *viper.Viper, requireToken bool) (*client, error) {
	token := v.GetString(flagToken)
	if requireToken && token == "" {
		return nil, ErrMissingToken
	}

	tlsConfig, err := tlsutil.BuildClientConfig(v.GetString(flagCAFile))
	if err != nil {
		return nil, err
	}

	return newClient(v.GetString(flagURL), token, v.GetString(flagAPIVersion), time.Minute, tlsConfig), nil
}

// runJob enqueues a job, then prints either its task id or, with --wait, its result.
func runJob(cmd *cobra.Command, v *viper.Viper, c *client, method string, body any) error {
	id, err := c.enqueue(cmd.Context(), method, body)
	if err != nil {
		return err
	}

	if !v.GetBool(flagWait) {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	}

	return await(cmd, v, c, id)
}

func await(cmd *cobra.Command, v *viper.Viper, c *client, id string) error {
	resp, err := c.await(cmd.Context(), id, v.GetDuration(flagInterval), v.GetDuration(flagTimeout))
	if resp != nil {
		if printErr := printJSON(cmd.OutOrStdout(), resp.Raw); printErr != nil {
			return printErr
		}
	}

	return err
}

func printJSON(w io.Writer, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err = w.Write(raw)
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
