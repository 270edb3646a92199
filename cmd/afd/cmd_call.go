package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/tui"
)

func newCallCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "call <name> <json>",
		Short: "invoke one command with a raw JSON argument object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, rawArgs := args[0], args[1]
			if !json.Valid([]byte(rawArgs)) {
				return fmt.Errorf("second argument is not valid JSON: %s", rawArgs)
			}
			out, err := callCommand(cmd.Context(), name, json.RawMessage(rawArgs))
			if err != nil {
				return err
			}
			if !printEnvelope(out, pretty) {
				return errCommandFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "pretty-print and color the result envelope")
	return cmd
}

func callCommand(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	rc, err := resolveRemote()
	if err != nil {
		return nil, err
	}
	if rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return rc.toolsCall(ctx, name, args)
	}

	app, err := newLocalApp()
	if err != nil {
		return nil, err
	}
	var input any
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}
	env := app.client.Call(ctx, name, input)
	return json.Marshal(env)
}

// errCommandFailed maps a success:false envelope onto exit code 1 without
// re-printing the error printEnvelope already rendered.
var errCommandFailed = errors.New("command returned success: false")

// printEnvelope renders the envelope and reports whether it was successful,
// so callers can map the outcome onto the process exit code.
func printEnvelope(raw json.RawMessage, pretty bool) bool {
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data,omitempty"`
		Error   *struct {
			Code       string `json:"code"`
			Message    string `json:"message"`
			Suggestion string `json:"suggestion"`
		} `json:"error,omitempty"`
	}
	parsed := json.Unmarshal(raw, &env) == nil

	if !pretty {
		fmt.Println(string(raw))
		return !parsed || env.Success
	}
	if !parsed {
		fmt.Println(string(raw))
		return true
	}

	if env.Success {
		indented, _ := json.MarshalIndent(map[string]json.RawMessage{"data": env.Data}, "", "  ")
		fmt.Println(tui.SuccessText.Render("success"))
		fmt.Println(string(indented))
		return true
	}
	if env.Error != nil {
		fmt.Println(tui.ErrorText.Render(fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message)))
		if env.Error.Suggestion != "" {
			fmt.Println(tui.WarnText.Render("suggestion: " + env.Error.Suggestion))
		}
	}
	return false
}
