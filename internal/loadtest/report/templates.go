package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --accent: #3b82f6;
            --success: #22c55e;
            --error: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
        }
        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }
        .card {
            background: var(--card);
            border-radius: 12px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }
        .header { display: flex; justify-content: space-between; align-items: center; flex-wrap: wrap; gap: 1rem; }
        .header h1 { font-size: 1.75rem; }
        .meta { color: var(--muted); font-size: 0.875rem; display: flex; gap: 1.5rem; flex-wrap: wrap; }
        .status { padding: 0.5rem 1.25rem; border-radius: 9999px; font-weight: 700; color: #fff; }
        .status.pass { background: var(--success); }
        .status.fail { background: var(--error); }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; }
        .metric .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
        .metric .value { font-size: 1.6rem; font-weight: 700; }
        .metric .unit { font-size: 0.9rem; color: var(--muted); margin-left: 0.25rem; }
        h2 { font-size: 1.15rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { padding: 0.5rem 0.75rem; text-align: right; border-bottom: 1px solid var(--border); }
        th:first-child, td:first-child, th:nth-child(2), td:nth-child(2) { text-align: left; }
        th { color: var(--muted); font-weight: 600; }
        tr.total td { font-weight: 700; }
        .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(420px, 1fr)); gap: 1.5rem; }
        .threshold { display: flex; gap: 1rem; padding: 0.5rem 0; border-bottom: 1px solid var(--border); }
        .threshold .pass { color: var(--success); }
        .threshold .fail { color: var(--error); }
        .footer { text-align: center; color: var(--muted); font-size: 0.8rem; }
    </style>
</head>
<body>
<div class="container">
    <div class="card header">
        <div>
            <h1>{{.Name}}</h1>
            <div class="meta">
                <span>Host: {{.Host}}</span>
                <span>Started: {{.StartTime.Format "2006-01-02 15:04:05"}}</span>
                <span>Duration: {{formatDuration .Duration}}</span>
                <span>Stopped: {{.StopReason}}</span>
                <span>Run: {{.RunID}}</span>
            </div>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}PASSED{{else}}FAILED{{end}}</div>
    </div>

    {{with .Metrics}}
    <div class="card grid">
        <div class="metric"><div class="label">Requests</div><div class="value">{{formatNumber .TotalRequests}}</div></div>
        <div class="metric"><div class="label">Failures</div><div class="value">{{formatNumber .FailedRequests}}</div></div>
        <div class="metric"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .OverallRPS}}<span class="unit">req/s</span></div></div>
        <div class="metric"><div class="label">Success rate</div><div class="value">{{percent (successRate .)}}</div></div>
        <div class="metric"><div class="label">P95 latency</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
        <div class="metric"><div class="label">Received</div><div class="value">{{formatBytes .TotalBytes}}</div></div>
    </div>

    <div class="card">
        <h2>Latency distribution</h2>
        <div class="grid">
            <div class="metric"><div class="label">Min</div><div class="value">{{formatLatency .Latency.Min}}</div></div>
            <div class="metric"><div class="label">Mean</div><div class="value">{{formatLatency .Latency.Mean}}</div></div>
            <div class="metric"><div class="label">P50</div><div class="value">{{formatLatency .Latency.P50}}</div></div>
            <div class="metric"><div class="label">P90</div><div class="value">{{formatLatency .Latency.P90}}</div></div>
            <div class="metric"><div class="label">P95</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
            <div class="metric"><div class="label">P99</div><div class="value">{{formatLatency .Latency.P99}}</div></div>
            <div class="metric"><div class="label">Max</div><div class="value">{{formatLatency .Latency.Max}}</div></div>
        </div>
    </div>
    {{end}}

    {{if .Spawned}}
    <div class="card">
        <h2>Users</h2>
        <table>
            <thead><tr><th>Class</th><th></th><th>Spawned</th></tr></thead>
            <tbody>
            {{range $class, $n := .Spawned}}
            <tr><td>{{$class}}</td><td></td><td>{{$n}}</td></tr>
            {{end}}
            <tr class="total"><td>Peak concurrent</td><td></td><td>{{.PeakUsers}}</td></tr>
            </tbody>
        </table>
    </div>
    {{end}}

    {{if .Requests}}
    <div class="card">
        <h2>Requests</h2>
        <table>
            <thead>
            <tr><th>Method</th><th>Name</th><th># reqs</th><th># fails</th><th>Avg</th><th>Min</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th><th>req/s</th></tr>
            </thead>
            <tbody>
            {{range .Requests}}
            <tr>
                <td>{{.Method}}</td>
                <td>{{.Name}}</td>
                <td>{{formatNumber .Requests}}</td>
                <td>{{formatNumber .Failures}} ({{percent .FailureRate}})</td>
                <td>{{formatLatency .Latency.Mean}}</td>
                <td>{{formatLatency .Latency.Min}}</td>
                <td>{{formatLatency .Latency.P50}}</td>
                <td>{{formatLatency .Latency.P95}}</td>
                <td>{{formatLatency .Latency.P99}}</td>
                <td>{{formatLatency .Latency.Max}}</td>
                <td>{{printf "%.2f" .RPS}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
    </div>
    {{end}}

    {{if .TimeSeries}}
    <div class="card">
        <h2>Over time</h2>
        <div class="charts">
            <canvas id="rpsChart"></canvas>
            <canvas id="latencyChart"></canvas>
            <canvas id="usersChart"></canvas>
        </div>
    </div>
    {{end}}

    {{if .Thresholds}}
    <div class="card">
        <h2>Thresholds</h2>
        {{range .Thresholds}}
        <div class="threshold">
            <span class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</span>
            <span>{{.Metric}}</span>
            <span>{{.Expression}}</span>
            <span>actual: {{.Value}}</span>
            {{if .Message}}<span class="fail">{{.Message}}</span>{{end}}
        </div>
        {{end}}
    </div>
    {{end}}

    <p class="footer">Generated by imload &middot; {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</p>
</div>

<script>
    const timeSeriesData = {{.TimeSeriesJSON}};

    function lineChart(id, label, datasets) {
        const el = document.getElementById(id);
        if (!el || typeof Chart === 'undefined') {
            return;
        }
        new Chart(el, {
            type: 'line',
            data: {
                labels: timeSeriesData.map(p => new Date(p.timestamp).toLocaleTimeString()),
                datasets: datasets
            },
            options: {
                animation: false,
                plugins: { title: { display: true, text: label } },
                elements: { point: { radius: 0 } }
            }
        });
    }

    if (timeSeriesData.length > 0) {
        lineChart('rpsChart', 'Requests per second', [
            { label: 'RPS', data: timeSeriesData.map(p => p.rps), borderColor: '#3b82f6' },
            { label: 'Failures %', data: timeSeriesData.map(p => p.errorRate * 100), borderColor: '#ef4444' }
        ]);
        lineChart('latencyChart', 'Response time (ms)', [
            { label: 'P50', data: timeSeriesData.map(p => p.p50), borderColor: '#22c55e' },
            { label: 'P95', data: timeSeriesData.map(p => p.p95), borderColor: '#f59e0b' },
            { label: 'P99', data: timeSeriesData.map(p => p.p99), borderColor: '#ef4444' }
        ]);
        lineChart('usersChart', 'Active users', [
            { label: 'Users', data: timeSeriesData.map(p => p.users), borderColor: '#8b5cf6', stepped: true }
        ]);
    }
</script>
</body>
</html>
`
