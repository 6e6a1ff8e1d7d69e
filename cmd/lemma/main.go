// Command lemma is the CLI for the Lemma rule engine: evaluate documents,
// inspect them, invert rules, and serve a workspace over HTTP.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/benrogmans/lemma/internal/engine"
	"github.com/benrogmans/lemma/internal/server"
)

// exit codes: 0 success, 1 evaluation failure, 2 parse/semantic failure
const (
	exitOK      = 0
	exitEvalErr = 1
	exitLoadErr = 2
)

var (
	flagDir    string
	flagFacts  []string
	flagStrict bool
	flagHost   string
	flagPort   int
	flagTarget string
	flagFact   string
)

func main() {
	root := &cobra.Command{
		Use:           "lemma",
		Short:         "Evaluate and invert Lemma business-rule documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run [DOC[:RULES]]",
		Short: "Evaluate rules of a document",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVarP(&flagDir, "dir", "d", ".", "directory with .lemma files")
	runCmd.Flags().StringArrayVarP(&flagFacts, "fact", "f", nil, "fact override name=value (repeatable)")
	runCmd.Flags().BoolVar(&flagStrict, "strict", false, "treat vetoes and missing facts as errors")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List documents in the workspace",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().StringVarP(&flagDir, "dir", "d", ".", "directory with .lemma files")

	showCmd := &cobra.Command{
		Use:   "show DOC",
		Short: "Show a document's facts and rules",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	showCmd.Flags().StringVarP(&flagDir, "dir", "d", ".", "directory with .lemma files")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the workspace over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
	serverCmd.Flags().StringVarP(&flagDir, "dir", "d", ".", "directory with .lemma files")
	serverCmd.Flags().StringVar(&flagHost, "host", "127.0.0.1", "listen host")
	serverCmd.Flags().IntVarP(&flagPort, "port", "p", 3000, "listen port")

	invertCmd := &cobra.Command{
		Use:   "invert DOC RULE",
		Short: "Find the inputs that produce a target outcome",
		Args:  cobra.ExactArgs(2),
		RunE:  runInvert,
	}
	invertCmd.Flags().StringVarP(&flagDir, "dir", "d", ".", "directory with .lemma files")
	invertCmd.Flags().StringVarP(&flagTarget, "target", "t", "any", "target: any, veto, veto:<msg>, or [op]<value>")
	invertCmd.Flags().StringArrayVarP(&flagFacts, "fact", "f", nil, "given fact name=value (repeatable)")
	invertCmd.Flags().StringVar(&flagFact, "domain-for", "", "report the valid domain of this fact instead")

	root.AddCommand(runCmd, listCmd, showCmd, serverCmd, invertCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if engine.IsIngestError(err) {
			os.Exit(exitLoadErr)
		}
		os.Exit(exitEvalErr)
	}
}

// loadWorkspace ingests every .lemma file under the directory.
func loadWorkspace(dir string) (*engine.Workspace, error) {
	ws := engine.New()
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".lemma") {
			return nil
		}
		code, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		return ws.AddSource(string(code), path)
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(flagDir)
	if err != nil {
		return err
	}

	var docName string
	var rules []string
	if len(args) == 1 {
		docName, rules = splitDocRules(args[0])
	} else {
		docs := ws.ListDocuments()
		if len(docs) != 1 {
			return engine.Errorf(engine.CodeBadInput,
				"workspace has %d documents; name one to evaluate", len(docs))
		}
		docName = docs[0]
	}

	overrides, err := ws.ParseFacts(flagFacts)
	if err != nil {
		return err
	}
	response, err := ws.Evaluate(docName, rules, overrides)
	if err != nil {
		return err
	}

	failed := false
	for _, res := range response.Results {
		switch {
		case res.MissingFacts != nil:
			fmt.Printf("%-24s missing facts: %s\n", res.Name, strings.Join(res.MissingFacts, ", "))
			failed = true
		case res.Vetoed:
			if res.Veto != nil && *res.Veto != "" {
				fmt.Printf("%-24s veto: %s\n", res.Name, *res.Veto)
			} else {
				fmt.Printf("%-24s veto\n", res.Name)
			}
			failed = true
		default:
			fmt.Printf("%-24s %s\n", res.Name, res.Value)
		}
	}
	for _, warning := range response.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", warning)
	}
	if failed && flagStrict {
		os.Exit(exitEvalErr)
	}
	return nil
}

// splitDocRules parses DOC[:rule1,rule2].
func splitDocRules(arg string) (string, []string) {
	doc, ruleList, found := strings.Cut(arg, ":")
	if !found {
		return arg, nil
	}
	var rules []string
	for _, r := range strings.Split(ruleList, ",") {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	return doc, rules
}

func runList(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(flagDir)
	if err != nil {
		return err
	}
	for _, name := range ws.ListDocuments() {
		fmt.Println(name)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(flagDir)
	if err != nil {
		return err
	}
	summary, err := ws.DescribeDocument(args[0])
	if err != nil {
		return err
	}
	fmt.Println("doc", summary.Name)
	if summary.Commentary != "" {
		fmt.Println()
		fmt.Println(summary.Commentary)
	}
	if len(summary.Facts) > 0 {
		fmt.Println("\nfacts:")
		for _, f := range summary.Facts {
			if f.Default != nil {
				fmt.Printf("  %-24s %-12s = %s\n", f.Path, f.Type, f.Default)
			} else {
				fmt.Printf("  %-24s %-12s (required)\n", f.Path, f.Type)
			}
		}
	}
	if len(summary.Rules) > 0 {
		fmt.Println("\nrules:")
		for _, r := range summary.Rules {
			if len(r.Dependencies) > 0 {
				fmt.Printf("  %-24s depends on %s\n", r.Name, strings.Join(r.Dependencies, ", "))
			} else {
				fmt.Printf("  %s\n", r.Name)
			}
		}
	}
	return nil
}

func runServer(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(flagDir)
	if err != nil {
		return err
	}
	app := fiber.New(fiber.Config{ErrorHandler: server.ErrorHandler})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(server.RequestID())
	server.RegisterRoutes(app, server.NewHandler(ws))

	addr := fmt.Sprintf("%s:%d", flagHost, flagPort)
	fmt.Println("Listening on", addr)
	return app.Listen(addr)
}

func runInvert(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(flagDir)
	if err != nil {
		return err
	}
	docName, ruleName := args[0], args[1]

	givens, err := ws.ParseFacts(flagFacts)
	if err != nil {
		return err
	}

	if flagFact != "" {
		dom, err := ws.ValidDomain(docName, ruleName, flagFact, givens)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", flagFact, dom)
		return nil
	}

	target, err := engine.ParseTarget(flagTarget)
	if err != nil {
		return err
	}
	shape, err := ws.Invert(docName, ruleName, target, givens)
	if err != nil {
		return err
	}
	for _, rel := range shape.Relationships {
		fmt.Println(rel)
	}
	if len(shape.FreeVariables) > 0 {
		fmt.Println("free:", strings.Join(shape.FreeVariables, ", "))
	}
	return nil
}
