// Package main is the command-line client for the card search API. It talks
// to the gateway through envelopes and can wrap, unwrap and sign payloads
// locally for debugging.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/veil/internal/client/api"
	"github.com/atinyakov/veil/internal/codec"
	"github.com/atinyakov/veil/internal/config"
	"github.com/atinyakov/veil/internal/envelope"
	"github.com/atinyakov/veil/internal/logger"
	"github.com/atinyakov/veil/internal/models"
)

var (
	version   string
	buildDate string
)

// errUsage marks errors caused by wrong invocation.
var errUsage = errors.New("usage")

func main() {
	opts, args, err := config.ParseClient(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if opts.Version {
		fmt.Printf("veil client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	if opts.APIKey == "" && needsAPIKey(opts.Command, args) {
		opts.APIKey = promptAPIKey()
	}

	l := logger.New()
	defer func() { _ = l.Log.Sync() }()
	if err := l.Init("error"); err != nil {
		log.Fatal(err)
	}

	if err := run(context.Background(), opts, args, os.Stdin, os.Stdout, l); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// run executes opts.Command with the positional args.
func run(ctx context.Context, opts *config.ClientOptions, args []string, in io.Reader, out io.Writer, l *logger.Logger) error {
	switch opts.Command {
	case "wrap", "unwrap", "sign", "verify":
		b, err := newBuilder(opts.Key)
		if err != nil {
			return err
		}
		return runLocal(opts.Command, b, args, in, out)
	case "search", "examples", "models", "validate":
		svc, err := newService(opts, l)
		if err != nil {
			return err
		}
		return runRemote(ctx, opts, svc, args, out)
	case "":
		return fmt.Errorf("%w: -cmd is required (search | examples | models | validate | wrap | unwrap | sign | verify)", errUsage)
	default:
		return fmt.Errorf("%w: unknown command: %s", errUsage, opts.Command)
	}
}

func newBuilder(key string) (*envelope.Builder, error) {
	c, err := codec.NewFromString(key)
	if err != nil {
		return nil, err
	}
	return envelope.NewBuilder(c), nil
}

func newService(opts *config.ClientOptions, l *logger.Logger) (*api.Service, error) {
	httpClient, err := api.NewHTTPClient(opts.CAFile, opts.Timeout.D())
	if err != nil {
		return nil, err
	}

	clientOpts := []api.Option{
		api.WithClientVersion(clientVersion()),
		api.WithLogger(l.Log),
	}
	if !opts.Plain {
		b, err := newBuilder(opts.Key)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, api.WithBuilder(b))
		if opts.Sign {
			clientOpts = append(clientOpts, api.WithSignature())
		}
	}

	settings := api.Settings{APIKey: opts.APIKey, Model: opts.Model, Provider: opts.Provider}
	return api.NewService(api.New(httpClient, opts.BaseURL, clientOpts...), settings, l.Log), nil
}

func runRemote(ctx context.Context, opts *config.ClientOptions, svc *api.Service, args []string, out io.Writer) error {
	switch opts.Command {
	case "search":
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("%w: search <query>", errUsage)
		}
		if !svc.HasAPIKey() {
			return fmt.Errorf("%w: an API key is required (--api-key or MTG_AI_API_KEY)", errUsage)
		}
		resp, err := svc.SearchCards(ctx, models.SearchRequest{
			Query:    query,
			Language: opts.Language,
			Sort:     opts.Sort,
			Order:    opts.Order,
		})
		if err != nil {
			return err
		}
		return printJSON(out, resp)
	case "examples":
		resp, err := svc.GetExamples(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, resp)
	case "models":
		resp, err := svc.FetchModels(ctx, opts.Provider)
		if err != nil {
			return err
		}
		return printJSON(out, resp)
	default:
		key := opts.APIKey
		if len(args) > 0 {
			key = args[0]
		}
		if key == "" {
			return fmt.Errorf("%w: validate <api-key>", errUsage)
		}
		resp, err := svc.ValidateAPIKey(ctx, key)
		if err != nil {
			return err
		}
		return printJSON(out, resp)
	}
}

// runLocal handles the offline commands. Each reads one JSON document from in.
func runLocal(cmd string, b *envelope.Builder, args []string, in io.Reader, out io.Writer) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	raw = bytes.TrimSpace(raw)

	switch cmd {
	case "wrap":
		e, err := b.WrapJSON(raw)
		if err != nil {
			return err
		}
		return printJSON(out, e)
	case "unwrap":
		e, ok := envelope.Detect(raw)
		if !ok {
			return errors.New("input is not an envelope")
		}
		plain, err := b.UnwrapJSON(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(plain))
		return err
	case "sign":
		ts := time.Now().UnixMilli()
		if len(args) > 0 {
			if ts, err = strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("%w: sign [timestamp-ms]", errUsage)
			}
		}
		if _, err := b.Codec().EncodeJSON(raw); err != nil {
			return err
		}
		return printJSON(out, map[string]any{
			"signature": b.Codec().SignJSON(raw, ts),
			"timestamp": ts,
		})
	default:
		if len(args) != 2 {
			return fmt.Errorf("%w: verify <signature> <timestamp-ms>", errUsage)
		}
		ts, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: verify <signature> <timestamp-ms>", errUsage)
		}
		if !b.Codec().VerifyJSON(raw, ts, args[0]) {
			return errors.New("signature mismatch")
		}
		_, err = fmt.Fprintln(out, "ok")
		return err
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clientVersion() string {
	if version == "" {
		return api.DefaultClientVersion
	}
	return version
}
