// Command pinakes is the single CLI entry point (C9): one binary
// carrying a subcommand per operation, dispatched with the standard
// library's flag package.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/identity"

	"pinakes/internal/adapters/atproto"
	"pinakes/internal/platform/config"
	"pinakes/internal/platform/logger"
	"pinakes/internal/platform/progress"
	"pinakes/internal/platform/store"
	"pinakes/internal/platform/store/sqlite"

	backfillsvc "pinakes/internal/services/backfill/service"
	bfdomain "pinakes/internal/services/backfill/domain"
	"pinakes/internal/services/embed"
	idx "pinakes/internal/services/index/domain"
	idxservice "pinakes/internal/services/index/service"
	searchdomain "pinakes/internal/services/search/domain"
	searchsvc "pinakes/internal/services/search/service"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: pinakes <config|backfill|import|embeddings|search|explain> [flags]")
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	l := logger.Get()
	root := config.New().Prefix("PINAKES_")

	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		Path:       root.MayString("DB_PATH", "pinakes.db"),
		VecEnabled: true,
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	if err := sqlite.Migrate(ctx, st.DB); err != nil {
		l.Panic().Err(err).Msg("schema migrate failed")
	}

	index := idxservice.New(st.DB, *l)
	mgr := atproto.NewManager(identity.DefaultDirectory(), atproto.ServiceLimits{
		Concurrency: root.MayInt("RPC_CONCURRENCY", 10),
		IntervalCap: root.MayInt("RPC_INTERVAL_CAP", 3000),
		Interval:    root.MayDuration("RPC_INTERVAL", 300*time.Second),
	})

	switch cmd {
	case "config":
		runConfig(ctx, index, args, l)
	case "backfill":
		runBackfill(ctx, index, mgr, root, args, l)
	case "import":
		runImport(ctx, index, mgr, root, args, l)
	case "embeddings":
		runEmbeddings(ctx, index, args, l)
	case "search":
		runSearch(ctx, index, mgr, args, l)
	case "explain":
		runExplain(ctx, index, mgr, args, l)
	default:
		l.Fatal().Str("cmd", cmd).Msg("unknown subcommand")
	}
}

// allowedConfigKeys restricts `config` to the small known set spec.md §3 names.
var allowedConfigKeys = map[string]bool{
	idx.ConfigKeyDID:     true,
	idx.ConfigKeyAppview: true,
}

func runConfig(ctx context.Context, index *idxservice.Index, args []string, l *logger.Logger) {
	if len(args) < 1 {
		l.Fatal().Msg("config: requires set|get|delete")
	}
	action, rest := args[0], args[1:]

	switch action {
	case "set":
		if len(rest) != 2 || !allowedConfigKeys[rest[0]] {
			l.Fatal().Msg("config set <key> <value>: key must be one of did, appview")
		}
		if err := index.SetConfig(ctx, rest[0], rest[1]); err != nil {
			l.Fatal().Err(err).Msg("config set failed")
		}
	case "get":
		if len(rest) != 1 || !allowedConfigKeys[rest[0]] {
			l.Fatal().Msg("config get <key>: key must be one of did, appview")
		}
		val, ok, err := index.GetConfig(ctx, rest[0])
		if err != nil {
			l.Fatal().Err(err).Msg("config get failed")
		}
		if !ok {
			fmt.Println("")
			return
		}
		fmt.Println(val)
	case "delete":
		if len(rest) != 1 || !allowedConfigKeys[rest[0]] {
			l.Fatal().Msg("config delete <key>: key must be one of did, appview")
		}
		if err := index.DeleteConfig(ctx, rest[0]); err != nil {
			l.Fatal().Err(err).Msg("config delete failed")
		}
	default:
		l.Fatal().Str("action", action).Msg("config: unknown action")
	}
}

// resolveDID returns the configured did, failing fatally if unset.
func resolveDID(ctx context.Context, index *idxservice.Index, l *logger.Logger) string {
	did, ok, err := index.GetConfig(ctx, idx.ConfigKeyDID)
	if err != nil {
		l.Fatal().Err(err).Msg("reading config did failed")
	}
	if !ok || did == "" {
		l.Fatal().Msg("no did configured; run `pinakes config set did <did>` first")
	}
	return did
}

func resolveAppview(ctx context.Context, index *idxservice.Index, override string) string {
	if override != "" {
		return override
	}
	if val, ok, _ := index.GetConfig(ctx, idx.ConfigKeyAppview); ok && val != "" {
		return val
	}
	return "https://api.bsky.app"
}

func newEmbedder() embed.Embedder {
	return embed.NewLazy(func() embed.Embedder { return embed.NewStub() })
}

func runBackfill(ctx context.Context, index *idxservice.Index, mgr *atproto.Manager, root config.Conf, args []string, l *logger.Logger) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	var (
		fDepth      = fs.Int("depth", 0, "max ancestor walk depth (0: auto)")
		fEmbeddings = fs.Bool("embeddings", false, "compute embeddings for newly written posts")
		fAppview    = fs.String("appview", "", "appview host override")
		fQuiet      = fs.Bool("quiet", false, "suppress progress bars")
	)
	if err := fs.Parse(args); err != nil {
		l.Fatal().Err(err).Msg("backfill: bad flags")
	}

	did := resolveDID(ctx, index, l)
	appview := resolveAppview(ctx, index, *fAppview)

	runEngine(ctx, index, mgr, bfdomain.Config{
		UserDID:           did,
		AppviewHost:       appview,
		MaxDepth:          *fDepth,
		EmbeddingsEnabled: *fEmbeddings,
	}, *fQuiet, l)
}

// fileRepoRPC wraps an RPCPort, serving the CAR bytes at path for one DID
// from disk instead of the network, for `import <path.car> --did DID`.
type fileRepoRPC struct {
	bfdomain.RPCPort
	did string
	car []byte
}

func (f fileRepoRPC) GetRepo(ctx context.Context, did string) ([]byte, error) {
	if did == f.did {
		return f.car, nil
	}
	return f.RPCPort.GetRepo(ctx, did)
}

func runImport(ctx context.Context, index *idxservice.Index, mgr *atproto.Manager, root config.Conf, args []string, l *logger.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var (
		fDID   = fs.String("did", "", "did that owns the imported repo (required for a CAR file source)")
		fDepth = fs.Int("depth", 0, "max ancestor walk depth (0: auto)")
		fForce = fs.Bool("force", false, "ignore the stored repo revision watermark")
	)
	if err := fs.Parse(args); err != nil {
		l.Fatal().Err(err).Msg("import: bad flags")
	}
	if fs.NArg() != 1 {
		l.Fatal().Msg("import <source>: source is a file path, a did, or a handle")
	}
	source := fs.Arg(0)

	var rpc bfdomain.RPCPort = mgr
	did := source

	if info, statErr := os.Stat(source); statErr == nil && !info.IsDir() {
		if *fDID == "" {
			l.Fatal().Msg("import: a CAR file source requires --did")
		}
		car, err := os.ReadFile(source)
		if err != nil {
			l.Fatal().Err(err).Msg("import: reading car file failed")
		}
		did = *fDID
		rpc = fileRepoRPC{RPCPort: mgr, did: did, car: car}
	} else if !strings.HasPrefix(source, "did:") {
		resolved, err := mgr.ResolveIdentifier(ctx, source)
		if err != nil {
			l.Fatal().Err(err).Msg("import: resolving handle failed")
		}
		did = resolved
	}

	if *fForce {
		if err := index.SetRepoRev(ctx, did, ""); err != nil {
			l.Fatal().Err(err).Msg("import: clearing repo rev failed")
		}
	}

	appview := resolveAppview(ctx, index, "")
	runEngineWithRPC(ctx, index, rpc, bfdomain.Config{
		UserDID:     did,
		AppviewHost: appview,
		MaxDepth:    *fDepth,
	}, false, l)
}

func runEngine(ctx context.Context, index *idxservice.Index, mgr *atproto.Manager, cfg bfdomain.Config, quiet bool, l *logger.Logger) {
	runEngineWithRPC(ctx, index, mgr, cfg, quiet, l)
}

func runEngineWithRPC(ctx context.Context, index *idxservice.Index, rpc bfdomain.RPCPort, cfg bfdomain.Config, quiet bool, l *logger.Logger) {
	scope := progress.NewScope(quiet)
	defer func() { _ = scope.Close() }()

	start := time.Now()
	engine := backfillsvc.New(cfg, rpc, index, newEmbedder(), scope, *l)
	defer engine.Close()

	if err := engine.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("backfill run failed")
	}
	fmt.Printf("done in %s\n", time.Since(start).Round(time.Millisecond))
}

func runEmbeddings(ctx context.Context, index *idxservice.Index, args []string, l *logger.Logger) {
	fs := flag.NewFlagSet("embeddings", flag.ExitOnError)
	fForce := fs.Bool("force", false, "recompute embeddings for every post, not just null ones")
	if err := fs.Parse(args); err != nil {
		l.Fatal().Err(err).Msg("embeddings: bad flags")
	}

	posts, err := index.SearchPostsText(ctx, idx.TextSearchOptions{Results: 0})
	if err != nil {
		l.Fatal().Err(err).Msg("embeddings: listing posts failed")
	}

	var pending []idx.Post
	for _, p := range posts {
		if *fForce || p.Embedding == nil {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		fmt.Println("no posts need embeddings")
		return
	}

	embedder := newEmbedder()
	const batchSize = bfdomain.WritePostsBatchSize
	for i := 0; i < len(pending); i += batchSize {
		end := i + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		texts := make([]string, len(batch))
		for j, p := range batch {
			texts[j] = p.Text
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			l.Fatal().Err(err).Msg("embeddings: embedding batch failed")
		}
		for j := range batch {
			batch[j].Embedding = vecs[j]
		}
		if err := index.InsertPosts(ctx, batch); err != nil {
			l.Fatal().Err(err).Msg("embeddings: writing batch failed")
		}
	}
	fmt.Printf("embedded %d posts\n", len(pending))
}

// csvFlag collects repeated or comma-separated values for identifier filters.
type csvFlag struct{ vals []string }

func (c *csvFlag) String() string { return strings.Join(c.vals, ",") }
func (c *csvFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			c.vals = append(c.vals, part)
		}
	}
	return nil
}

func runSearch(ctx context.Context, index *idxservice.Index, mgr *atproto.Manager, args []string, l *logger.Logger) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		fVector     = fs.Bool("vector", false, "semantic search over embeddings instead of substring match")
		fResults    = fs.Int("results", 20, "max results")
		fCreator    = csvFlag{}
		fParent     = csvFlag{}
		fRoot       = csvFlag{}
		fBefore     = fs.String("before", "", "ISO8601 upper bound on created_at")
		fAfter      = fs.String("after", "", "ISO8601 lower bound on created_at")
		fOrder      = fs.String("order", "desc", "asc|desc")
		fThreshold  = fs.Float64("threshold", -1, "max cosine distance (vector search only)")
		fIncAlt     = fs.Bool("include-alt", false, "also match/embed alt text")
	)
	fs.Var(&fCreator, "creator", "filter by creator did/handle (repeatable/CSV)")
	fs.Var(&fParent, "parent-author", "filter by reply-parent author did/handle (repeatable/CSV)")
	fs.Var(&fRoot, "root-author", "filter by reply-root author did/handle (repeatable/CSV)")
	if err := fs.Parse(args); err != nil {
		l.Fatal().Err(err).Msg("search: bad flags")
	}
	if fs.NArg() != 1 {
		l.Fatal().Msg("search <query> [flags]")
	}
	query := fs.Arg(0)

	order := idx.Desc
	if strings.EqualFold(*fOrder, "asc") {
		order = idx.Asc
	}
	before := parseISOPtr(*fBefore, l)
	after := parseISOPtr(*fAfter, l)

	svc := searchsvc.New(index, mgr)

	if *fVector {
		embedder := newEmbedder()
		vecs, err := embedder.Embed(ctx, []string{query})
		if err != nil {
			l.Fatal().Err(err).Msg("search: embedding query failed")
		}
		var threshold *float64
		if *fThreshold >= 0 {
			threshold = fThreshold
		}
		results, err := svc.SearchVector(ctx, searchdomain.VectorQuery{
			QueryVec:       vecs[0],
			IncludeAltText: *fIncAlt,
			Creators:       fCreator.vals,
			ParentAuthors:  fParent.vals,
			RootAuthors:    fRoot.vals,
			Before:         before,
			After:          after,
			Order:          order,
			Threshold:      threshold,
			Results:        *fResults,
		})
		if err != nil {
			l.Fatal().Err(err).Msg("search: vector search failed")
		}
		for _, r := range results {
			fmt.Printf("%.4f  at://%s/app.bsky.feed.post/%s  %s\n", r.Distance, r.Post.Creator, r.Post.Rkey, oneLine(r.Post.Text))
		}
		return
	}

	results, err := svc.SearchText(ctx, searchdomain.TextQuery{
		Query:          query,
		IncludeAltText: *fIncAlt,
		Creators:       fCreator.vals,
		ParentAuthors:  fParent.vals,
		RootAuthors:    fRoot.vals,
		Before:         before,
		After:          after,
		Order:          order,
		Results:        *fResults,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("search: text search failed")
	}
	for _, p := range results {
		fmt.Printf("at://%s/app.bsky.feed.post/%s  %s\n", p.Creator, p.Rkey, oneLine(p.Text))
	}
}

func runExplain(ctx context.Context, index *idxservice.Index, mgr *atproto.Manager, args []string, l *logger.Logger) {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		l.Fatal().Err(err).Msg("explain: bad flags")
	}
	if fs.NArg() != 1 {
		l.Fatal().Msg("explain <at-uri>")
	}

	svc := searchsvc.New(index, mgr)
	node, err := svc.Explain(ctx, fs.Arg(0))
	if err != nil {
		l.Fatal().Err(err).Msg("explain failed")
	}
	printExplainChain(node, 0)
}

func printExplainChain(node *searchdomain.ExplainNode, depth int) {
	if node == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	if node.Cycle {
		fmt.Printf("%s%s  (cycle)\n", indent, node.URI)
		return
	}
	ctxStr := ""
	if node.Context != nil {
		ctxStr = fmt.Sprintf("  context=%s", *node.Context)
	}
	fmt.Printf("%s%s  reason=%s%s\n", indent, node.URI, node.Reason, ctxStr)
	printExplainChain(node.Cause, depth+1)
}

func parseISOPtr(s string, l *logger.Logger) *int64 {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		l.Fatal().Err(err).Str("value", s).Msg("bad ISO8601 timestamp")
	}
	ms := t.UnixMilli()
	return &ms
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
