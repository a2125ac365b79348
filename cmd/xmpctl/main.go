package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"example.com/xmpgate/internal/backup"
	"example.com/xmpgate/internal/common"
	"example.com/xmpgate/internal/convert"
	"example.com/xmpgate/internal/plan"
	"example.com/xmpgate/internal/report"
	"example.com/xmpgate/internal/rules"
	"example.com/xmpgate/internal/xmp"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "inspect":
		inspectCmd(os.Args[2:])
	case "check":
		checkCmd(os.Args[2:])
	case "apply":
		applyCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "undo":
		undoCmd(os.Args[2:])
	case "restore":
		restoreCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "rulepack":
		rulepackCmd(os.Args[2:])
	case "version":
		fmt.Printf("xmpctl %s (built %s)\n", version, buildDate)
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`xmpctl %s (built %s) <command> [options]

Commands:
  inspect  <file> [--trace] [--rules <pack.jsonc> | --rulepack <id@version>]
  check    <path>... --plan <file.plan> [--workers N] [--progress]
  apply    (--plan <file.plan> | <path>...) [--backup keep|overwrite|none] [--compression none|zstd|lz4] [--backup-dir <dir>] [--audit <audit.jsonl>]
  batch    <path>... --out-dir <dir> [--dry-run] [--ndjson]
  undo     --audit <audit.jsonl>
  restore  <path>... [--backup-dir <dir>]
  report   --in <report.json> --out <report.pdf>
  rulepack <install|list|remove|default|show> [...]
`, version, buildDate)
}

// engineFlags are shared by every command that evaluates files.
type engineFlags struct {
	rulesPath string
	ref       string
	repo      string
	workers   int
	trace     bool
	progress  bool
}

func addEngineFlags(fs *pflag.FlagSet) *engineFlags {
	f := &engineFlags{}
	fs.StringVar(&f.rulesPath, "rules", "", "rule pack file (.jsonc)")
	fs.StringVar(&f.ref, "rulepack", "", "installed rule pack as id@version")
	fs.StringVar(&f.repo, "repo", "", "rule pack repository (default ~/.xmpgate/rules)")
	fs.IntVarP(&f.workers, "workers", "j", runtime.NumCPU(), "files processed concurrently")
	fs.BoolVar(&f.trace, "trace", false, "log every metadata field read")
	fs.BoolVar(&f.progress, "progress", false, "display progress updates")
	return f
}

func (f *engineFlags) service() (*convert.Service, error) {
	req := rules.RulePackRequest{Path: f.rulesPath, Ref: f.ref, Repo: f.repo}
	if req.Ref != "" && req.Repo == "" {
		repo, err := rules.DefaultRepository()
		if err != nil {
			return nil, fmt.Errorf("open repository: %w", err)
		}
		req.Repo = repo.Root()
	}
	rp, err := rules.ResolveRulePack(req)
	if err != nil {
		return nil, err
	}
	svc := convert.NewService(rules.NewEngine(rp))
	if f.trace {
		svc.Observer = xmp.ObserverFunc(func(tr xmp.Trace) {
			if !tr.Found {
				common.Logf("read %s: absent", tr.Field)
				return
			}
			common.Logf("read %s (%s): %q", tr.Field, tr.Source, tr.Values)
		})
	}
	return svc, nil
}

// run drives fn over files with the configured worker count and an optional
// progress line on stderr.
func (f *engineFlags) run(svc *convert.Service, files []convert.File, fn convert.Step) ([]convert.File, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	metrics := common.NewMetrics()
	svc.Metrics = metrics
	var stopProgress func()
	if f.progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	results, err := svc.Run(ctx, files, f.workers, fn)
	if stopProgress != nil {
		stopProgress()
	}
	if f.progress {
		snap := metrics.Snapshot()
		fmt.Fprintf(os.Stderr, "Metrics: duration=%s files=%d processed=%s %.1f files/s\n",
			snap.Duration.Round(10*time.Millisecond), snap.Files, common.FormatBytes(snap.Bytes), snap.FilesPerSecond())
	}
	return results, err
}

type backupFlags struct {
	mode        string
	compression string
	dir         string
	audit       string
}

func addBackupFlags(fs *pflag.FlagSet) *backupFlags {
	f := &backupFlags{}
	fs.StringVar(&f.mode, "backup", "keep", "backup mode: keep, overwrite or none")
	fs.StringVar(&f.compression, "compression", "none", "backup compression: none, zstd or lz4")
	fs.StringVar(&f.dir, "backup-dir", "", "directory for backups (default: next to each file)")
	fs.StringVar(&f.audit, "audit", "", "append one patch entry per written file to this log (jsonl)")
	return f
}

func (f *backupFlags) apply(svc *convert.Service) error {
	mode, err := backup.ParseMode(f.mode)
	if err != nil {
		return err
	}
	compression, err := backup.ParseCompression(f.compression)
	if err != nil {
		return err
	}
	svc.Backup = backup.Options{Mode: mode, Compression: compression, Dir: f.dir}
	if f.audit != "" {
		svc.Audit = common.NewPatchLog(f.audit)
	}
	return nil
}

func collect(paths []string) []convert.File {
	if len(paths) == 0 {
		fmt.Println("required: at least one file or directory")
		os.Exit(1)
	}
	files, errs := convert.Collect(paths)
	for _, err := range errs {
		fmt.Println("skip:", err)
	}
	return files
}

func inspectCmd(args []string) {
	fs := pflag.NewFlagSet("inspect", pflag.ExitOnError)
	ef := addEngineFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Println("required: exactly one file")
		os.Exit(1)
	}
	svc, err := ef.service()
	if err != nil {
		fmt.Println("resolve rulepack:", err)
		os.Exit(1)
	}
	ins, err := svc.Inspect(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Println("inspect:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ins); err != nil {
		fmt.Println("encode:", err)
		os.Exit(1)
	}
}

func checkCmd(args []string) {
	fs := pflag.NewFlagSet("check", pflag.ExitOnError)
	ef := addEngineFlags(fs)
	planPath := fs.String("plan", "", "write the check results to this plan file")
	fs.Parse(args)

	files := collect(fs.Args())
	svc, err := ef.service()
	if err != nil {
		fmt.Println("resolve rulepack:", err)
		os.Exit(1)
	}
	results, err := ef.run(svc, files, svc.Check)
	printResults(os.Stdout, results)
	if err != nil {
		fmt.Println("check:", err)
		os.Exit(1)
	}
	if *planPath == "" {
		return
	}
	p := plan.New(svc.RulePackRef(), time.Now())
	for _, f := range results {
		p.Entries = append(p.Entries, f.Entry())
	}
	if err := plan.Save(*planPath, p); err != nil {
		fmt.Println("write plan:", err)
		os.Exit(1)
	}
	fmt.Printf("Plan: %s (%d ready)\n", *planPath, len(p.Ready(convert.Ready.String())))
}

func applyCmd(args []string) {
	fs := pflag.NewFlagSet("apply", pflag.ExitOnError)
	ef := addEngineFlags(fs)
	bf := addBackupFlags(fs)
	planPath := fs.String("plan", "", "apply the ready entries of this plan file")
	fs.Parse(args)

	if *planPath != "" && fs.NArg() > 0 {
		fmt.Println("--plan and paths cannot be used together")
		os.Exit(1)
	}
	var (
		files    []convert.File
		planPack string
	)
	if *planPath != "" {
		p, err := plan.Load(*planPath)
		if err != nil {
			fmt.Println("read plan:", err)
			os.Exit(1)
		}
		planPack = p.RulePack
		for _, e := range p.Ready(convert.Ready.String()) {
			f, err := convert.FromEntry(e)
			if err != nil {
				fmt.Println("read plan:", err)
				os.Exit(1)
			}
			files = append(files, f)
		}
		if len(files) == 0 {
			fmt.Println("Nothing to apply")
			return
		}
	} else {
		files = collect(fs.Args())
	}

	svc, err := ef.service()
	if err != nil {
		fmt.Println("resolve rulepack:", err)
		os.Exit(1)
	}
	if err := bf.apply(svc); err != nil {
		fmt.Println("backup:", err)
		os.Exit(1)
	}
	if planPack != "" && planPack != svc.RulePackRef() {
		fmt.Printf("WARNING: plan was checked with %s, changed files are re-checked with %s\n", planPack, svc.RulePackRef())
	}
	results, err := ef.run(svc, files, svc.Apply)
	printResults(os.Stdout, results)
	if err != nil {
		fmt.Println("apply:", err)
		os.Exit(1)
	}
	if svc.Audit != nil {
		fmt.Printf("Audit log: %s\n", svc.Audit.Path())
	}
}

func batchCmd(args []string) {
	fs := pflag.NewFlagSet("batch", pflag.ExitOnError)
	ef := addEngineFlags(fs)
	bf := addBackupFlags(fs)
	outDir := fs.String("out-dir", "out", "results directory")
	dryRun := fs.Bool("dry-run", false, "check files without writing them")
	ndjson := fs.Bool("ndjson", false, "also stream per-file results to results.ndjson")
	fs.Parse(args)

	files := collect(fs.Args())
	svc, err := ef.service()
	if err != nil {
		fmt.Println("resolve rulepack:", err)
		os.Exit(1)
	}
	if err := bf.apply(svc); err != nil {
		fmt.Println("backup:", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Println("create out dir:", err)
		os.Exit(1)
	}

	var stream *os.File
	if *ndjson {
		stream, err = os.Create(filepath.Join(*outDir, "results.ndjson"))
		if err != nil {
			fmt.Println("create results.ndjson:", err)
			os.Exit(1)
		}
		defer stream.Close()
		var mu sync.Mutex
		enc := json.NewEncoder(stream)
		svc.Progress = func(_ int, f convert.File) {
			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(report.FromFile(f)); err != nil {
				common.Logf("write results.ndjson: %v", err)
			}
		}
	}

	step := svc.Apply
	if *dryRun {
		step = svc.Check
	}
	results, runErr := ef.run(svc, files, step)
	rep := report.New(svc.RulePackRef(), time.Now(), results)
	if err := report.SaveJSON(rep, filepath.Join(*outDir, "report.json")); err != nil {
		fmt.Println("write report:", err)
		os.Exit(1)
	}
	if err := report.SavePDF(rep, filepath.Join(*outDir, "report.pdf")); err != nil {
		fmt.Println("write report pdf:", err)
		os.Exit(1)
	}
	s := rep.Summary
	fmt.Printf("files=%d complete=%d ready=%d skipped=%d failed=%d\n", s.Total, s.Complete, s.Ready, s.Skipped, s.Failed)
	if runErr != nil {
		fmt.Println("batch:", runErr)
		os.Exit(1)
	}
}

func undoCmd(args []string) {
	fs := pflag.NewFlagSet("undo", pflag.ExitOnError)
	auditPath := fs.String("audit", "", "audit log written by apply or batch")
	fs.Parse(args)

	if *auditPath == "" {
		fmt.Println("required: --audit")
		os.Exit(1)
	}
	entries, err := common.ReadPatchLog(*auditPath)
	if err != nil {
		fmt.Println("read audit log:", err)
		os.Exit(1)
	}
	n, err := common.Restore(entries)
	fmt.Printf("Restored %d of %d writes\n", n, len(entries))
	if err != nil {
		fmt.Println("undo:", err)
		os.Exit(1)
	}
}

func restoreCmd(args []string) {
	fs := pflag.NewFlagSet("restore", pflag.ExitOnError)
	dir := fs.String("backup-dir", "", "directory holding the backups (default: next to each file)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Println("required: at least one file")
		os.Exit(1)
	}
	failed := false
	for _, path := range fs.Args() {
		bak, ok := backup.Find(path, *dir)
		if !ok {
			fmt.Printf("%s: no backup found\n", path)
			failed = true
			continue
		}
		if err := backup.Restore(bak, path); err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("%s: restored from %s\n", path, bak)
	}
	if failed {
		os.Exit(1)
	}
}

func reportCmd(args []string) {
	fs := pflag.NewFlagSet("report", pflag.ExitOnError)
	in := fs.String("in", "report.json", "batch report json")
	out := fs.String("out", "report.pdf", "pdf output")
	fs.Parse(args)

	rep, err := report.LoadJSON(*in)
	if err != nil {
		fmt.Println("read report:", err)
		os.Exit(1)
	}
	if !report.Verify(rep) {
		fmt.Println("WARNING: report digest does not match its files")
	}
	if err := report.SavePDF(rep, *out); err != nil {
		fmt.Println("write pdf:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote", *out)
}

func printResults(w io.Writer, files []convert.File) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Path, f.State, f.Message())
	}
	tw.Flush()
	counts := convert.Summary(files)
	states := make([]convert.State, 0, len(counts))
	for st := range counts {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	parts := make([]string, 0, len(states))
	for _, st := range states {
		parts = append(parts, fmt.Sprintf("%s=%d", st, counts[st]))
	}
	if len(parts) > 0 {
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
}

func rulepackCmd(args []string) {
	if len(args) == 0 {
		rulepackUsage()
		os.Exit(1)
	}
	switch args[0] {
	case "install":
		rulepackInstallCmd(args[1:])
	case "list":
		rulepackListCmd(args[1:])
	case "remove":
		rulepackRemoveCmd(args[1:])
	case "default":
		rulepackDefaultCmd(args[1:])
	case "show":
		rulepackShowCmd(args[1:])
	default:
		fmt.Println("unknown rulepack subcommand")
		rulepackUsage()
		os.Exit(1)
	}
}

func rulepackUsage() {
	fmt.Println("rulepack commands:")
	fmt.Println("  install --file <pack.jsonc|pack.zip>")
	fmt.Println("  list")
	fmt.Println("  remove --id <rulepack> --version <version>")
	fmt.Println("  default --id <rulepack> --version <version>")
	fmt.Println("  show [--rules <pack.jsonc> | --rulepack <id@version>] [--sources]")
}

func openRepository(dir string) *rules.Repository {
	var (
		repo *rules.Repository
		err  error
	)
	if dir != "" {
		repo, err = rules.OpenRepository(dir)
	} else {
		repo, err = rules.DefaultRepository()
	}
	if err != nil {
		fmt.Println("open repository:", err)
		os.Exit(1)
	}
	return repo
}

func rulepackInstallCmd(args []string) {
	fs := pflag.NewFlagSet("rulepack install", pflag.ExitOnError)
	file := fs.String("file", "", "rule pack (.jsonc) or archive (.zip)")
	repoDir := fs.String("repo", "", "rule pack repository")
	fs.Parse(args)

	if *file == "" {
		fmt.Println("required: --file")
		os.Exit(1)
	}
	installed, err := openRepository(*repoDir).Install(*file)
	if err != nil {
		fmt.Println("install rule pack:", err)
		os.Exit(1)
	}
	fmt.Printf("Installed %s@%s (%d rules)\n", installed.RulePack.RulePackId, installed.RulePack.Version, len(installed.RulePack.Rules))
}

func rulepackListCmd(args []string) {
	fs := pflag.NewFlagSet("rulepack list", pflag.ExitOnError)
	repoDir := fs.String("repo", "", "rule pack repository")
	fs.Parse(args)

	repo := openRepository(*repoDir)
	packs, err := repo.ListInstalled()
	if err != nil {
		fmt.Println("list rule packs:", err)
		os.Exit(1)
	}
	def, hasDefault, err := repo.Default()
	if err != nil {
		fmt.Println("read default:", err)
		os.Exit(1)
	}
	if len(packs) == 0 {
		fmt.Println("No rule packs installed")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tRULES\tDEFAULT")
	for _, p := range packs {
		mark := ""
		if hasDefault && def.RulePackId == p.RulePack.RulePackId && def.Version == p.RulePack.Version {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.RulePack.RulePackId, p.RulePack.Version, len(p.RulePack.Rules), mark)
	}
	tw.Flush()
}

func rulepackRemoveCmd(args []string) {
	fs := pflag.NewFlagSet("rulepack remove", pflag.ExitOnError)
	id := fs.String("id", "", "rule pack identifier")
	ver := fs.String("version", "", "rule pack version")
	repoDir := fs.String("repo", "", "rule pack repository")
	fs.Parse(args)

	if *id == "" || *ver == "" {
		fmt.Println("required: --id, --version")
		os.Exit(1)
	}
	ref := rules.RulePackRef{RulePackId: *id, Version: *ver}
	if err := openRepository(*repoDir).Remove(ref); err != nil {
		if errors.Is(err, rules.ErrRulePackNotFound) {
			fmt.Println("rule pack not installed:", ref)
		} else {
			fmt.Println("remove rule pack:", err)
		}
		os.Exit(1)
	}
	fmt.Println("Removed", ref)
}

func rulepackDefaultCmd(args []string) {
	fs := pflag.NewFlagSet("rulepack default", pflag.ExitOnError)
	id := fs.String("id", "", "rule pack identifier")
	ver := fs.String("version", "", "rule pack version")
	repoDir := fs.String("repo", "", "rule pack repository")
	fs.Parse(args)

	if *id == "" || *ver == "" {
		fmt.Println("required: --id, --version")
		os.Exit(1)
	}
	ref := rules.RulePackRef{RulePackId: *id, Version: *ver}
	if err := openRepository(*repoDir).SetDefault(ref); err != nil {
		fmt.Println("set default:", err)
		os.Exit(1)
	}
	fmt.Println("Default rule pack:", ref)
}

func rulepackShowCmd(args []string) {
	fs := pflag.NewFlagSet("rulepack show", pflag.ExitOnError)
	ef := addEngineFlags(fs)
	sources := fs.Bool("sources", false, "list the registered source names instead of the pack")
	fs.Parse(args)

	svc, err := ef.service()
	if err != nil {
		fmt.Println("resolve rulepack:", err)
		os.Exit(1)
	}
	if *sources {
		for _, name := range svc.Engine.Sources() {
			fmt.Println(name)
		}
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(svc.Engine.RulePack()); err != nil {
		fmt.Println("encode:", err)
		os.Exit(1)
	}
}
