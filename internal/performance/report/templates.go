package report

// htmlTemplate is the single-page HTML report.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Target}} - Stress Test Report</title>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --accent: #3b82f6;
            --ok: #22c55e;
            --warn: #f59e0b;
            --bad: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
        }
        .container { max-width: 1200px; margin: 0 auto; padding: 2rem; }
        .card {
            background: var(--card);
            border: 1px solid var(--border);
            border-radius: 12px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
        }
        h1 { font-size: 1.75rem; }
        h2 { font-size: 1.1rem; margin-bottom: 1rem; }
        .meta { color: var(--muted); font-size: 0.875rem; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; }
        .metric .value { font-size: 1.5rem; font-weight: 700; }
        .metric .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 600; }
        .num { text-align: right; font-variant-numeric: tabular-nums; }
        .pass { color: var(--ok); }
        .fail { color: var(--bad); }
        .warn { color: var(--warn); }
        .bar { background: var(--accent); height: 0.75rem; border-radius: 3px; }
        .stars { color: var(--warn); font-size: 1.5rem; }
    </style>
</head>
<body>
<div class="container">
    <div class="card">
        <h1>{{.Target}}</h1>
        <div class="meta">
            Run {{.ID}} &middot; {{.StartedAt.Format "2006-01-02 15:04:05"}} &middot;
            {{.Concurrency}} workers &middot; {{formatDuration .Duration}}
        </div>
        {{if .Aborted}}
        <p class="fail">Aborted: connectivity probe failed</p>
        {{else if .Passed}}
        <p class="pass">Passed</p>
        {{else}}
        <p class="fail">Failed</p>
        {{end}}
    </div>

    {{with .Diagnosis}}
    <div class="card">
        <h2>Probe Diagnosis</h2>
        <table>
            <tr><th>Endpoint</th><td>{{.Endpoint}}</td></tr>
            <tr><th>Outcome</th><td>{{.Outcome}}</td></tr>
            {{if .StatusCode}}<tr><th>Status</th><td>{{.StatusCode}}</td></tr>{{end}}
            {{if .ErrorKind}}<tr><th>Error</th><td>{{.ErrorKind}}</td></tr>{{end}}
            <tr><th>Latency</th><td>{{formatMs .LatencyMs}}</td></tr>
        </table>
    </div>
    {{end}}

    {{if not .Aborted}}
    <div class="card">
        <h2>Summary</h2>
        <div class="grid">
            <div class="metric"><div class="value">{{formatNumber .Total}}</div><div class="label">Requests</div></div>
            <div class="metric"><div class="value">{{printf "%.1f" .Throughput}}/s</div><div class="label">Throughput</div></div>
            <div class="metric"><div class="value">{{printf "%.2f" .SuccessRate}}%</div><div class="label">Success Rate</div></div>
            <div class="metric"><div class="value">{{formatMs .Latency.P95}}</div><div class="label">p95 Latency</div></div>
            <div class="metric"><div class="value">{{formatBytes .TotalBytes}}</div><div class="label">Received</div></div>
            <div class="metric"><div class="value">{{.MaxConsecutiveFailures}}</div><div class="label">Max Consecutive Failures</div></div>
        </div>
    </div>

    <div class="card">
        <h2>Rating</h2>
        <div class="stars">{{stars .Rating.Stars}} {{.Rating.Label}}</div>
        <div class="meta">{{range $i, $n := .Rating.Notes}}{{if $i}} &middot; {{end}}{{$n}}{{end}}</div>
    </div>

    {{if .Latency.Available}}
    <div class="card">
        <h2>Response Times</h2>
        <table>
            <tr><th>Min</th><th>Mean</th><th>Std Dev</th><th>p50</th><th>p75</th><th>p90</th><th>p95</th><th>p99</th><th>Max</th></tr>
            <tr>
                <td>{{formatMs .Latency.Min}}</td><td>{{formatMs .Latency.Mean}}</td><td>{{formatMs .Latency.StdDev}}</td>
                <td>{{formatMs .Latency.P50}}</td><td>{{formatMs .Latency.P75}}</td><td>{{formatMs .Latency.P90}}</td>
                <td>{{formatMs .Latency.P95}}</td><td>{{formatMs .Latency.P99}}</td><td>{{formatMs .Latency.Max}}</td>
            </tr>
        </table>
        <h2 style="margin-top: 1.5rem">Distribution</h2>
        <table>
            {{range .Histogram}}
            <tr>
                <td>{{formatMs .Lower}} - {{formatMs .Upper}}</td>
                <td style="width: 60%"><div class="bar" style="width: {{barWidth .Count $.Histogram}}"></div></td>
                <td class="num">{{.Count}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .EndpointStats}}
    <div class="card">
        <h2>Endpoints</h2>
        <table>
            <tr><th>Endpoint</th><th class="num">Requests</th><th class="num">Success</th><th class="num">Avg</th><th class="num">p95</th><th class="num">Max</th></tr>
            {{range .EndpointStats}}
            <tr>
                <td>{{.Endpoint}}</td>
                <td class="num">{{formatNumber .Count}}</td>
                <td class="num">{{printf "%.0f" .SuccessRate}}%</td>
                <td class="num">{{formatMs .Mean}}</td>
                <td class="num">{{formatMs .P95}}</td>
                <td class="num">{{formatMs .Max}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .StatusCodes}}
    <div class="card">
        <h2>Status Codes</h2>
        <table>
            {{range statusCodes .StatusCodes}}<tr><td>{{.Code}}</td><td class="num">{{formatNumber .Count}}</td></tr>{{end}}
        </table>
    </div>
    {{end}}

    {{if .ErrorKinds}}
    <div class="card">
        <h2>Errors</h2>
        <table>
            {{range $kind, $n := .ErrorKinds}}<tr><td class="fail">{{$kind}}</td><td class="num">{{formatNumber $n}}</td></tr>{{end}}
        </table>
    </div>
    {{end}}

    {{if .Timeline}}
    <div class="card">
        <h2>Timeline</h2>
        <table>
            <tr><th>Second</th><th class="num">Requests</th><th class="num">Success</th><th class="num">Failed</th><th class="num">Avg</th><th class="num">Max</th></tr>
            {{range .Timeline}}{{if .Count}}
            <tr>
                <td>{{.Second}}</td>
                <td class="num">{{formatNumber .Count}}</td>
                <td class="num">{{formatNumber .Success}}</td>
                <td class="num{{if .Failure}} fail{{end}}">{{formatNumber .Failure}}</td>
                <td class="num">{{formatMs .AvgLatency}}</td>
                <td class="num">{{formatMs .Max}}</td>
            </tr>
            {{end}}{{end}}
        </table>
    </div>
    {{end}}

    <div class="card">
        <h2>Anomalies</h2>
        {{if .Anomalies}}
        <table>
            <tr><th>At</th><th>Kind</th><th>Endpoint</th><th>Detail</th></tr>
            {{range .Anomalies}}
            <tr>
                <td>{{offset .At}}</td>
                <td class="warn">{{.Kind}}</td>
                <td>{{.Details.Endpoint}}</td>
                <td>{{if .Details.ErrorKind}}{{.Details.ErrorKind}} x{{.Details.ConsecutiveFailures}}{{else}}{{formatMs .Details.LatencyMs}}{{end}}</td>
            </tr>
            {{end}}
        </table>
        {{else}}
        <p class="pass">No anomalies detected</p>
        {{end}}
    </div>

    {{with .Health}}
    <div class="card">
        <h2>Server Health (before / after)</h2>
        <table>
            <tr><th>Probe</th><th>Field</th><th class="num">Before</th><th class="num">After</th><th class="num">Change</th></tr>
            {{range .Deltas}}
            <tr>
                <td>{{.Probe}}</td><td>{{.Field}}</td>
                <td class="num">{{.Before}}</td><td class="num">{{.After}}</td>
                <td class="num{{if gt .Change 0.0}} warn{{end}}">{{.Change}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Thresholds}}
    <div class="card">
        <h2>Thresholds</h2>
        <table>
            {{range .Thresholds}}
            <tr>
                <td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td>
                <td>{{.Group}}</td><td>{{.Expression}}</td><td>{{.Value}}</td><td class="meta">{{.Message}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}
    {{end}}
</div>
</body>
</html>
`
