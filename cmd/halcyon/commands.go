package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyon-ai/halcyon/internal/orchestrator"
	"github.com/halcyon-ai/halcyon/internal/planner"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

// =============================================================================
// ask
// =============================================================================

func buildAskCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		stream     bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Process a single request and print the response",
		Example: `  # One-shot question
  halcyon ask "check inventory for products WID-002"

  # Stream the response as it is generated
  halcyon ask --stream "summarize inventory analytics"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), resolveConfigPath(configPath), debug, stream, timeout, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the response incrementally")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout (default from config)")

	return cmd
}

func runAsk(ctx context.Context, configPath string, debug, stream bool, timeout time.Duration, message string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(configPath, debug)
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.sessions.CreateSession(ctx, localUser, localOrg)
	if err != nil {
		return err
	}

	req := orchestrator.Request{
		SessionID: session.ID,
		Message:   message,
		Options:   orchestrator.RequestOptions{Timeout: timeout},
	}

	if stream {
		events, err := a.orchestrator.ProcessStreamingRequest(ctx, req)
		if err != nil {
			return err
		}
		for ev := range events {
			if ev.Done {
				fmt.Println()
				break
			}
			fmt.Print(ev.Content)
		}
		return nil
	}

	resp, err := a.orchestrator.ProcessRequest(ctx, req)
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

func printResponse(resp *orchestrator.Response) {
	fmt.Println(resp.Content)
	for _, call := range resp.ToolCalls {
		status := "ok"
		if !call.Success {
			status = "failed: " + call.Error.Code
		}
		fmt.Printf("  [tool %s %s (%s)]\n", call.Name, status, call.Duration.Round(time.Millisecond))
		if call.Result != nil {
			if data, err := json.MarshalIndent(call.Result, "  ", "  "); err == nil {
				fmt.Printf("  %s\n", data)
			}
		}
	}
	fmt.Printf("(%s via %s/%s, %d tokens)\n",
		resp.Duration.Round(time.Millisecond), resp.Provider, resp.Model, resp.Usage.TotalTokens)
}

// =============================================================================
// chat
// =============================================================================

func buildChatCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Start an interactive session against the local tool catalog.

Conversation history accumulates in a single session, so follow-up
questions see earlier turns. Type /quit or press Ctrl-D to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runChat(ctx context.Context, configPath string, debug bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(configPath, debug)
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.sessions.CreateSession(ctx, localUser, localOrg)
	if err != nil {
		return err
	}
	fmt.Printf("session %s (type /quit to exit)\n", session.ID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		resp, err := a.orchestrator.ProcessRequest(ctx, orchestrator.Request{
			SessionID: session.ID,
			Message:   line,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		printResponse(resp)
	}
	return scanner.Err()
}

// =============================================================================
// plan
// =============================================================================

func buildPlanCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		execute    bool
	)

	cmd := &cobra.Command{
		Use:   "plan <intent>",
		Short: "Build an execution plan for an intent",
		Long: `Classify an intent, decompose it into a dependency-ordered plan, and
print the result. With --execute the plan is run against the local
tool catalog, including rollback on failure.`,
		Example: `  # Inspect the plan without running it
  halcyon plan "create product WID-009"

  # Build and execute
  halcyon plan --execute "check inventory for products WID-002"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), resolveConfigPath(configPath), debug, execute, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&execute, "execute", false, "Execute the plan after building it")

	return cmd
}

func runPlan(ctx context.Context, configPath string, debug, execute bool, intent string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(configPath, debug)
	if err != nil {
		return err
	}
	defer a.close()

	session, err := a.sessions.CreateSession(ctx, localUser, localOrg)
	if err != nil {
		return err
	}

	plan, err := a.planner.CreatePlan(ctx, intent, session)
	if err != nil {
		var verr *planner.PlanValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, "plan failed validation:")
			for _, issue := range verr.Issues {
				fmt.Fprintf(os.Stderr, "  [%s] %s\n", issue.Code, issue.Message)
			}
		}
		return err
	}

	if err := printJSON(plan); err != nil {
		return err
	}
	if !execute {
		return nil
	}

	result, err := a.planner.ExecutePlan(ctx, plan, models.ExecutionContext{
		OrgID:     localOrg,
		UserID:    localUser,
		SessionID: session.ID,
		Timestamp: time.Now(),
	})
	if result != nil {
		if perr := printJSON(result); perr != nil {
			return perr
		}
	}
	return err
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// =============================================================================
// tools
// =============================================================================

func buildToolsCmd() *cobra.Command {
	var (
		configPath string
		category   string
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(resolveConfigPath(configPath), category)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")

	return cmd
}

func runTools(configPath, category string) error {
	a, err := buildApp(configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	defs := a.registry.List(category)
	fmt.Printf("%-24s %-22s %-10s %s\n", "NAME", "ACCESS", "VERSION", "DESCRIPTION")
	for _, def := range defs {
		fmt.Printf("%-24s %-22s %-10s %s\n", def.Name, def.AccessLevel, def.Version, def.Description)
	}
	return nil
}
