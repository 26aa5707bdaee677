package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/certdossier/internal/bootstrap"
	"github.com/dharsanguruparan/certdossier/internal/certificate"
	"github.com/dharsanguruparan/certdossier/internal/config"
	"github.com/dharsanguruparan/certdossier/internal/docstore"
	"github.com/dharsanguruparan/certdossier/internal/logging"
	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
	pdfutil "github.com/dharsanguruparan/certdossier/internal/pdf"
)

var apiBase string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "certctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certctl",
		Short: "certdossier operator CLI",
		Long: `certctl inspects the certificate catalog, extracts and classifies PDF text,
merges stored documents, runs a pipeline in-process, and triggers or polls runs
on a running API.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&apiBase, "api", envOr("CERTDOSSIER_API", "http://localhost:8080"), "Base URL of the certdossier API")
	cmd.AddCommand(
		newCatalogCmd(),
		newExtractCmd(),
		newMergeCmd(),
		newRunCmd(),
		newTriggerCmd(),
		newStatusCmd(),
	)
	return cmd
}

func newCatalogCmd() *cobra.Command {
	var file, upstream string
	cmd := &cobra.Command{
		Use:   "catalog [CPF|CNPJ...]",
		Short: "List the certificates issued per subject type",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := certificate.DefaultCatalog(upstream)
			if file != "" {
				var err error
				if catalog, err = certificate.LoadCatalog(file, upstream); err != nil {
					return err
				}
			}
			if len(args) == 0 {
				args = []string{string(certificate.Individual), string(certificate.Company)}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SUBJECT\tCATEGORY\tFAMILY\tURL")
			for _, st := range args {
				for _, ep := range catalog.EndpointsFor(st) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st, ep.Category, ep.Family, ep.URL)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&file, "file", os.Getenv("CERTDOSSIER_CATALOG_FILE"), "YAML catalog overriding the defaults")
	cmd.Flags().StringVar(&upstream, "upstream", envOr("CERTDOSSIER_UPSTREAM_BASE", certificate.DefaultUpstream), "Upstream document service base URL")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "extract <file.pdf>",
		Short: "Print the normalized text of a PDF and its pendency verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text, err := pdfutil.Extractor{}.Extract(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, text)
			if family == "" {
				return nil
			}
			verdict := certificate.DefaultRules().Classify(text, certificate.Family(family))
			fmt.Fprintf(out, "\npendency: %t\nholder: %s\n", verdict.Pendency, verdict.HolderName)
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "Classify the text as court, nada_consta or revenue")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "merge <name...>",
		Short: "Merge documents stored in --dir into a dossier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := docstore.New(dir, "")
			if err != nil {
				return err
			}
			names := make([]string, 0, len(args))
			for _, arg := range args {
				names = append(names, filepath.Base(arg))
			}
			name, err := pdfutil.NewMerger(docs, nil).Merge(cmd.Context(), names)
			if err != nil {
				return err
			}
			if name == "" {
				return errors.New("no readable PDF among the inputs")
			}
			path, err := docs.Path(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", envOr("CERTDOSSIER_DOCUMENT_DIR", "./documents"), "Document directory holding the inputs")
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		caseID      int64
		subjectID   string
		subjectType string
		motherName  string
		ownerName   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the certificate pipeline in this process",
		Long: `run executes one pipeline synchronously with the service configuration. Without a
database a throwaway case is created for the subject.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), "certctl", cfg.LogLevel, "text")
			pipeline, err := bootstrap.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			if caseID == 0 {
				if caseID, err = pipeline.Seed(subjectID, ownerName, subjectType == string(certificate.Company)); err != nil {
					return fmt.Errorf("--case is required with a database: %w", err)
				}
			}
			run, err := pipeline.Orchestrator.Run(ctx, orchestrator.Request{
				CaseID:      caseID,
				SubjectID:   subjectID,
				MotherName:  motherName,
				SubjectType: subjectType,
			})
			if run != nil {
				if perr := printJSON(cmd.OutOrStdout(), run); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&caseID, "case", 0, "Case id (analise_id)")
	cmd.Flags().StringVar(&subjectID, "subject", "", "CPF or CNPJ of the subject")
	cmd.Flags().StringVar(&subjectType, "type", string(certificate.Individual), "Subject type: CPF or CNPJ")
	cmd.Flags().StringVar(&motherName, "mother", "", "Mother's name, required by some issuers")
	cmd.Flags().StringVar(&ownerName, "name", "", "Owner name for the throwaway case")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newTriggerCmd() *cobra.Command {
	var (
		caseID      int64
		subjectID   string
		subjectType string
		motherName  string
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the API to issue certificates for a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(orchestrator.Request{
				CaseID:      caseID,
				SubjectID:   subjectID,
				MotherName:  motherName,
				SubjectType: subjectType,
			})
			if err != nil {
				return err
			}
			return call(cmd, http.MethodPost, "/analises/certidoes", body)
		},
	}
	cmd.Flags().Int64Var(&caseID, "case", 0, "Case id (analise_id)")
	cmd.Flags().StringVar(&subjectID, "subject", "", "CPF or CNPJ of the subject")
	cmd.Flags().StringVar(&subjectType, "type", string(certificate.Individual), "Subject type: CPF or CNPJ")
	cmd.Flags().StringVar(&motherName, "mother", "", "Mother's name, required by some issuers")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status <case-id>",
		Short: "Show the latest certificate run of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid case id %q", args[0])
			}
			path := "/analises/" + url.PathEscape(args[0]) + "/certidoes/runs/latest"
			if all {
				path = "/analises/" + url.PathEscape(args[0]) + "/certidoes/runs"
			}
			return call(cmd, http.MethodGet, path, nil)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every run, newest first")
	return cmd
}

// call sends one request to the API and pretty-prints the JSON answer.
func call(cmd *cobra.Command, method, path string, body []byte) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, apiBase+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
