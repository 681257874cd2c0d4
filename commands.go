package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/prevd-classifier/internal/classifier"
	"github.com/refset/prevd-classifier/internal/httpapi"
	"github.com/refset/prevd-classifier/internal/intake"
	"github.com/refset/prevd-classifier/internal/pipeline"
)

// criteriaFlags are the per-run criteria overrides shared by the classify commands.
type criteriaFlags struct {
	user, coreValue, abuser, discovery string
}

func (f *criteriaFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.user, "criteria", "", "Additional classification criteria")
	fs.StringVar(&f.coreValue, "core-value", "", "Product core value")
	fs.StringVar(&f.abuser, "abuser-criteria", "", "Extra abuse heuristics")
	fs.StringVar(&f.discovery, "discovery-criteria", "", "Extra discovery heuristics")
}

// apply overlays non-blank flags onto base.
func (f *criteriaFlags) apply(base classifier.Criteria) classifier.Criteria {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&base.User, f.user)
	set(&base.CoreValue, f.coreValue)
	set(&base.Abuser, f.abuser)
	set(&base.Discovery, f.discovery)
	return base
}

var classifyFlags struct {
	criteria       criteriaFlags
	sampleCount    int
	rowConcurrency int
	output         string
}

var classifyCmd = &cobra.Command{
	Use:   "classify <file.csv>",
	Short: "Classify every row of a survey CSV",
	Long: `Classify every row of a survey CSV and stream NDJSON events
(start, progress, complete or error) to stdout or --output.

When Kafka or Postgres is configured, events and rows are also published
and stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyFlags.criteria.register(classifyCmd)
	f := classifyCmd.Flags()
	f.IntVarP(&classifyFlags.sampleCount, "samples", "n", 0, "Votes per row, 1-7 (default: classifier.sample_count)")
	f.IntVarP(&classifyFlags.rowConcurrency, "concurrency", "j", 0, "Rows classified at once, 1-10 (default: batch.row_concurrency)")
	f.StringVarP(&classifyFlags.output, "output", "o", "", "Write events to this file instead of stdout")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	up, err := readUpload(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := checkModel(ctx, a.model, a.log); err != nil {
		return err
	}

	job := pipeline.Job{
		Filename:       up.Filename,
		Upload:         up,
		Criteria:       classifyFlags.criteria.apply(a.cfg.Criteria),
		SampleCount:    orDefault(classifyFlags.sampleCount, a.cfg.Classifier.SampleCount),
		RowConcurrency: orDefault(classifyFlags.rowConcurrency, a.cfg.Batch.RowConcurrency),
	}

	out := cmd.OutOrStdout()
	if classifyFlags.output != "" {
		f, err := os.Create(classifyFlags.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	analysis, err := a.pipe.Run(ctx, job, pipeline.NewNDJSONSink(out))
	if err != nil {
		return err
	}
	a.log.Info("classification complete",
		zap.String("uploadId", analysis.UploadID),
		zap.Int("rows", analysis.ProcessedRows))
	return nil
}

func readUpload(path string) (*intake.Upload, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, fmt.Errorf("%s: only CSV files are supported", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	up, err := intake.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	up.Filename = filepath.Base(path)
	return up, nil
}

var classifyRowFlags struct {
	criteria    criteriaFlags
	sampleCount int
}

var classifyRowCmd = &cobra.Command{
	Use:   "classify-row <request.json>",
	Short: "Classify a single row from a JSON request ('-' reads stdin)",
	Long: `Classify a single row. The request has the same shape as the
POST /api/classify-row body:

  {"rowIndex": 1, "rawData": {...}, "rawEntries": [...], "criteria": "...", "sampleCount": 3}`,
	Args: cobra.ExactArgs(1),
	RunE: runClassifyRow,
}

func init() {
	classifyRowFlags.criteria.register(classifyRowCmd)
	classifyRowCmd.Flags().IntVarP(&classifyRowFlags.sampleCount, "samples", "n", 0, "Votes, 1-7 (overrides the request)")
}

// rowRequestFile is the on-disk form of a single-row request.
type rowRequestFile struct {
	RowIndex          int                   `json:"rowIndex"`
	RawData           map[string]string     `json:"rawData"`
	RawEntries        []classifier.RawEntry `json:"rawEntries"`
	Criteria          string                `json:"criteria"`
	CoreValue         string                `json:"coreValue"`
	AbuserCriteria    string                `json:"abuserCriteria"`
	DiscoveryCriteria string                `json:"discoveryCriteria"`
	SampleCount       int                   `json:"sampleCount"`
}

func readRowRequest(r io.Reader) (pipeline.RowRequest, error) {
	var f rowRequestFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return pipeline.RowRequest{}, fmt.Errorf("decode row request: %w", err)
	}
	if f.RawData == nil {
		return pipeline.RowRequest{}, errors.New("row request: rawData is required")
	}
	if f.RowIndex < 1 {
		f.RowIndex = 1
	}
	return pipeline.RowRequest{
		RowIndex:   f.RowIndex,
		RawData:    f.RawData,
		RawEntries: f.RawEntries,
		Criteria: classifier.Criteria{
			User:      f.Criteria,
			CoreValue: f.CoreValue,
			Abuser:    f.AbuserCriteria,
			Discovery: f.DiscoveryCriteria,
		},
		SampleCount: f.SampleCount,
	}, nil
}

func runClassifyRow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	req, err := readRowRequest(in)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	req.Criteria = classifyRowFlags.criteria.apply(fillCriteria(req.Criteria, a.cfg.Criteria))
	req.SampleCount = orDefault(classifyRowFlags.sampleCount, orDefault(req.SampleCount, a.cfg.Classifier.SampleCount))

	resp, err := a.pipe.ClassifyRow(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the classification HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: http.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := checkModel(ctx, a.model, a.log); err != nil {
		return err
	}

	opts := httpapi.Options{
		Criteria:       a.cfg.Criteria,
		SampleCount:    a.cfg.Classifier.SampleCount,
		RowConcurrency: a.cfg.Batch.RowConcurrency,
		Logger:         a.log,
	}
	if a.store != nil {
		opts.Store = a.store
	}
	srv := httpapi.New(a.pipe, opts)
	return srv.Run(ctx, orDefaultString(serveAddr, a.cfg.HTTP.Addr))
}

var overrideBy string

var overrideCmd = &cobra.Command{
	Use:   "override <row-id> <label>",
	Short: "Replace a stored row's final label",
	Long: `Replace the final label of a stored row. The model's label is kept
alongside for auditing. Requires DATABASE_URL or store.conn_string.`,
	Args: cobra.ExactArgs(2),
	RunE: runOverride,
}

func init() {
	overrideCmd.Flags().StringVar(&overrideBy, "by", os.Getenv("USER"), "Reviewer recorded with the override")
}

func runOverride(cmd *cobra.Command, args []string) error {
	label, err := classifier.ParseLabel(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.store == nil {
		return errors.New("override needs a database: set DATABASE_URL or store.conn_string")
	}

	if err := a.store.Override(ctx, args[0], label, overrideBy); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], label)
	return nil
}

var rubricCmd = &cobra.Command{
	Use:   "rubric",
	Short: "Print the system rubric sent with every prompt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "# prompt %s\n\n%s\n", classifier.PromptVersion, classifier.SystemRubric())
		return nil
	},
}

// fillCriteria fills blank fields of c from defaults.
func fillCriteria(c, defaults classifier.Criteria) classifier.Criteria {
	return classifier.Criteria{
		User:      orDefaultString(c.User, defaults.User),
		CoreValue: orDefaultString(c.CoreValue, defaults.CoreValue),
		Abuser:    orDefaultString(c.Abuser, defaults.Abuser),
		Discovery: orDefaultString(c.Discovery, defaults.Discovery),
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultString(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
