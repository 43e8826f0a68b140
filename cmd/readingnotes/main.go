package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"readingnotes/internal"
	"readingnotes/internal/catalog"
	"readingnotes/internal/config"
	"readingnotes/internal/listener"
	"readingnotes/internal/logger"
	"readingnotes/internal/notes"
	"readingnotes/internal/pipeline"
	"readingnotes/internal/resolver"
	"readingnotes/internal/storage"
	"readingnotes/internal/util"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	must(err)
	defer log.Sync()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	args := os.Args[2:]
	ctx := context.Background()

	switch cmd {
	case "serve":
		must(serve(cfg, log, db, newOrchestrator(cfg, log, db)))
	case "listen":
		sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		queue := newQueue(cfg, log, newOrchestrator(cfg, log, db))
		must(listener.NewService(db, queue, cfg, log).Run(sigCtx))
		must(closeQueue(queue))
	case "note:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		sentence := fs.String("sentence", "", "highlighted sentence")
		comment := fs.String("comment", "", "comment")
		title := fs.String("title", "", "raw book title")
		author := fs.String("author", "", "raw book author")
		_ = fs.Parse(args)
		orch := newOrchestrator(cfg, log, db)
		svc := notes.NewService(db, orch.Resolver(), orch.Finder(), inlineQueue{ctx: ctx, orch: orch}, log)
		note, err := svc.Create(ctx, notes.CreateInput{
			Sentence:  *sentence,
			Comment:   util.NonEmpty(*comment),
			RawTitle:  util.NonEmpty(*title),
			RawAuthor: util.NonEmpty(*author),
		})
		must(err)
		printNote(ctx, db, note.ID)
	case "note:edit":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "note id")
		sentence := fs.String("sentence", "", "new sentence")
		comment := fs.String("comment", "", "new comment")
		title := fs.String("title", "", "new raw title")
		author := fs.String("author", "", "new raw author")
		_ = fs.Parse(args)
		requireID(*id)

		var u storage.NoteUpdate
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "sentence":
				u.Sentence = sentence
			case "comment":
				u.Comment = comment
			case "title":
				u.RawTitle = title
			case "author":
				u.RawAuthor = author
			}
		})
		orch := newOrchestrator(cfg, log, db)
		svc := notes.NewService(db, orch.Resolver(), orch.Finder(), inlineQueue{ctx: ctx, orch: orch}, log)
		_, err := svc.Update(ctx, *id, u)
		must(err)
		printNote(ctx, db, *id)
	case "note:link":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "note id")
		source := fs.String("source", internal.SourceKakao, "LOCAL|KAKAO|NAVER")
		externalID := fs.String("externalId", "", "provider document id or url; book id for LOCAL")
		title := fs.String("title", "", "book title")
		author := fs.String("author", "", "book author")
		isbn := fs.String("isbn", "", "isbn10 and/or isbn13, space separated")
		publisher := fs.String("publisher", "", "publisher")
		published := fs.String("published", "", "yyyy, yyyy-MM or yyyy-MM-dd")
		_ = fs.Parse(args)
		requireID(*id)

		c := internal.Candidate{
			Source:        *source,
			ExternalID:    *externalID,
			Title:         *title,
			Author:        util.NonEmpty(*author),
			Publisher:     util.NonEmpty(*publisher),
			PublishedDate: internal.ParsePublishedDate(*published),
		}
		isbn10, isbn13 := util.SplitISBN(*isbn)
		c.ISBN10, c.ISBN13 = util.NonEmpty(isbn10), util.NonEmpty(isbn13)
		_, err := resolver.New(db, log).LinkManual(ctx, *id, c)
		must(err)
		printNote(ctx, db, *id)
	case "note:unlink":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "note id")
		_ = fs.Parse(args)
		requireID(*id)
		must(resolver.New(db, log).Unlink(ctx, *id))
		printNote(ctx, db, *id)
	case "note:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "note id")
		_ = fs.Parse(args)
		requireID(*id)
		note := printNote(ctx, db, *id)
		if note.BookID != nil {
			links, err := db.ListLinksByBook(ctx, *note.BookID)
			must(err)
			for _, l := range links {
				fmt.Printf("link %d source=%s externalId=%s synced=%s\n",
					l.ID, l.Source, l.ExternalID, l.SyncedAt.Format(time.RFC3339))
			}
		}
		runs, err := db.ListRuns(ctx, *id)
		must(err)
		for _, r := range runs {
			fmt.Printf("run %s outcome=%s source=%s score=%s at=%s\n",
				r.TraceID, r.Outcome, util.Deref(r.Source), formatScore(r.Score), r.CreatedAt.Format(time.RFC3339))
		}
	case "resolve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "note id")
		pending := fs.Bool("pending", false, "resolve every unattempted PENDING note")
		batch := fs.Int("batch", cfg.BackfillBatch, "batch size for --pending")
		_ = fs.Parse(args)
		if *id == 0 && !*pending {
			must(fmt.Errorf("--id or --pending is required"))
		}
		orch := newOrchestrator(cfg, log, db)
		ids := []int64{*id}
		if *pending {
			list, err := db.ListUnresolvedNotes(ctx, *batch)
			must(err)
			ids = ids[:0]
			for _, n := range list {
				ids = append(ids, n.ID)
			}
		}
		for _, noteID := range ids {
			res, err := orch.Resolve(ctx, noteID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "note %d: %v\n", noteID, err)
			}
			fmt.Printf("note=%d outcome=%s source=%s score=%s trace=%s\n",
				res.NoteID, res.Outcome, res.Source, formatScore(res.Score), res.TraceID)
		}
	case "candidates":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		title := fs.String("title", "", "raw title")
		author := fs.String("author", "", "raw author")
		limit := fs.Int("limit", 10, "max candidates (capped at 20)")
		_ = fs.Parse(args)
		if strings.TrimSpace(*title) == "" {
			must(fmt.Errorf("--title is required"))
		}
		printJSON(newOrchestrator(cfg, log, db).Finder().Candidates(ctx, *title, *author, *limit))
	case "notes:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		path := fs.String("xlsx", "", "spreadsheet with sentence, comment, title, author columns")
		resolveNow := fs.Bool("resolve", false, "match each imported note immediately")
		_ = fs.Parse(args)
		if strings.TrimSpace(*path) == "" {
			must(fmt.Errorf("--xlsx is required"))
		}
		blob, err := os.ReadFile(*path)
		must(err)
		rows, err := pipeline.ParseNotesXLSX(blob)
		must(err)

		// without --resolve nothing searches, so provider keys are not needed
		svc := notes.NewService(db, resolver.New(db, log), nil, nil, log)
		if *resolveNow {
			orch := newOrchestrator(cfg, log, db)
			svc = notes.NewService(db, orch.Resolver(), orch.Finder(), inlineQueue{ctx: ctx, orch: orch}, log)
		}
		created := 0
		for _, r := range rows {
			_, err := svc.Create(ctx, notes.CreateInput{
				Sentence:  r.Sentence,
				Comment:   util.NonEmpty(r.Comment),
				RawTitle:  util.NonEmpty(r.Title),
				RawAuthor: util.NonEmpty(r.Author),
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s row %d: %v\n", r.Sheet, r.RowNumber, err)
				continue
			}
			created++
		}
		fmt.Printf("import done rows=%d created=%d\n", len(rows), created)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", filepath.Join(cfg.OutputDir, "notes.xlsx"), "output xlsx path")
		_ = fs.Parse(args)
		rows, err := db.GetExportRows(ctx)
		must(err)
		must(pipeline.ExportNotesToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	default:
		usage()
		os.Exit(1)
	}
}

func serve(cfg config.Config, log *logger.Logger, db *storage.DB, orch *pipeline.Orchestrator) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	queue := newQueue(cfg, log, orch)
	svc := notes.NewService(db, orch.Resolver(), orch.Finder(), queue, log)

	if !strings.EqualFold(cfg.LogMode, "dev") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "db_error": err.Error()})
			return
		}
		books, err := db.CountBooks(pingCtx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "db_error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "books": books, "queued": queue.Pending()})
	})
	notes.NewHandler(svc, log).RegisterRoutes(router.Group("/api"))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return listener.NewService(db, queue, cfg, log).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if qerr := closeQueue(queue); err == nil {
		err = qerr
	}
	return err
}

// newOrchestrator builds the search side. Provider keys are checked here,
// so commands that never search run without them.
func newOrchestrator(cfg config.Config, log *logger.Logger, db *storage.DB) *pipeline.Orchestrator {
	providers, err := catalog.NewProviders(cfg)
	must(err)
	return pipeline.NewOrchestrator(db, cfg, log, catalog.NewLocal(db), providers)
}

func newQueue(cfg config.Config, log *logger.Logger, orch *pipeline.Orchestrator) *pipeline.Queue {
	return pipeline.NewQueue(cfg.ResolveQueueSize, cfg.ResolveWorkers, func(ctx context.Context, noteID int64) error {
		_, err := orch.Resolve(ctx, noteID)
		return err
	}, log)
}

func closeQueue(q *pipeline.Queue) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return q.Close(ctx)
}

// inlineQueue resolves on submit. One-shot commands exit right after the
// write, so there is no background worker to hand off to.
type inlineQueue struct {
	ctx  context.Context
	orch *pipeline.Orchestrator
}

func (q inlineQueue) Submit(noteID int64) error {
	_, err := q.orch.Resolve(q.ctx, noteID)
	return err
}

func printNote(ctx context.Context, db *storage.DB, id int64) *internal.Note {
	note, err := db.GetNote(ctx, id)
	must(err)
	if note == nil {
		must(fmt.Errorf("note %d not found", id))
	}
	printJSON(note)
	return note
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *score)
}

func requireID(id int64) {
	if id <= 0 {
		must(fmt.Errorf("--id is required"))
	}
}

func usage() {
	fmt.Println("usage: readingnotes <command>")
	fmt.Println("commands:")
	fmt.Println("  serve")
	fmt.Println("  listen")
	fmt.Println("  note:add --sentence=... [--title=... --author=... --comment=...]")
	fmt.Println("  note:edit --id=1 [--sentence=... --comment=... --title=... --author=...]")
	fmt.Println("  note:link --id=1 --source=KAKAO --externalId=... --title=... [--author --isbn --publisher --published]")
	fmt.Println("  note:unlink --id=1")
	fmt.Println("  note:show --id=1")
	fmt.Println("  resolve --id=1 | --pending [--batch=50]")
	fmt.Println("  candidates --title=... [--author=...] [--limit=10]")
	fmt.Println("  notes:import --xlsx=./notes.xlsx [--resolve]")
	fmt.Println("  export:xlsx [--out=./out/notes.xlsx]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
