package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dray-io/brokerstats/internal/lag"
	"github.com/dray-io/brokerstats/internal/logging"
)

type queryOptions struct {
	server  string
	kafka   []string
	output  string
	timeout time.Duration
	req     lag.Request
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query consumer lag statistics of a topic",
		Long: `Query active, total and delayed message counts of a topic for a consumer
group, either from a running daemon or directly from a Kafka cluster.`,
		Example: `  brokerstatsd query --topic orders --group billing
  brokerstatsd query --topic orders --group billing --kafka k1:9092,k2:9092 -o yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			resp, err := runQuery(ctx, opts)
			if err != nil {
				return err
			}
			if err := printResponse(cmd.OutOrStdout(), opts.output, resp); err != nil {
				return err
			}
			if resp.Code != lag.CodeSuccess {
				return errors.New(resp.Remark)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.req.Topic, "topic", "", "Topic to query")
	cmd.Flags().StringVar(&opts.req.Group, "group", "", "Consumer group")
	cmd.Flags().Int64Var(&opts.req.FromTime, "from", 0, "Range start, unix ms (default: earliest)")
	cmd.Flags().Int64Var(&opts.req.ToTime, "to", 0, "Range end, unix ms (default: latest)")
	cmd.Flags().StringVarP(&opts.server, "server", "s", "http://localhost:9090", "Daemon base URL")
	cmd.Flags().StringSliceVar(&opts.kafka, "kafka", nil, "Query Kafka seed brokers directly instead of a daemon")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "Output format: json, yaml")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Query timeout")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func runQuery(ctx context.Context, opts queryOptions) (*lag.Response, error) {
	if len(opts.kafka) > 0 {
		return queryKafka(ctx, opts.kafka, opts.req)
	}
	return queryServer(ctx, opts.server, opts.req)
}

func queryKafka(ctx context.Context, seeds []string, req lag.Request) (*lag.Response, error) {
	src, err := lag.DialKafka(seeds)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	agg := lag.NewAggregator(src, src, src, logging.Discard())
	result, err := agg.Statistics(ctx, req)
	switch {
	case err == nil:
		return &lag.Response{Code: lag.CodeSuccess, Result: result}, nil
	case errors.Is(err, lag.ErrTopicNotExist):
		return &lag.Response{Code: lag.CodeTopicNotExist, Remark: err.Error()}, nil
	default:
		return nil, err
	}
}

func queryServer(ctx context.Context, server string, req lag.Request) (*lag.Response, error) {
	q := url.Values{}
	q.Set("topic", req.Topic)
	q.Set("consumerGroup", req.Group)
	if req.FromTime > 0 {
		q.Set("fromTime", strconv.FormatInt(req.FromTime, 10))
	}
	if req.ToTime > 0 {
		q.Set("toTime", strconv.FormatInt(req.ToTime, 10))
	}
	target := strings.TrimSuffix(server, "/") + lag.Path + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", server, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	var resp lag.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("query %s: status %d: %w", server, httpResp.StatusCode, err)
	}
	return &resp, nil
}

func printResponse(w io.Writer, format string, resp *lag.Response) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
