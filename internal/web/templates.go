package web

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/a-h/templ"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/ingest"
	"github.com/sloppy/lynistracker/internal/report"
)

func render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

// pageWriter remembers the first write error so page bodies can be written
// without checking every call.
type pageWriter struct {
	w   io.Writer
	err error
}

func (p *pageWriter) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *pageWriter) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

func esc(s string) string {
	return html.EscapeString(s)
}

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw("<!doctype html><html lang=\"en\"><head>")
		p.raw("<meta charset=\"utf-8\">")
		p.raw("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		p.printf("<title>%s</title>", esc(title))
		p.raw(layoutStyles)
		p.raw("</head><body><main class=\"shell\">")
		if p.err != nil {
			return p.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		p.raw("</main></body></html>")
		return p.err
	})
}

func statusBadge(compliant bool) string {
	class := "badge badge--bad"
	if compliant {
		class = "badge badge--ok"
	}
	return fmt.Sprintf("<span class=\"%s\">%s</span>", class, compliance.StatusLabel(compliant))
}

func formatWhen(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func devicesListPage(devices []db.Device) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw("<header class=\"page-header\"><p class=\"eyebrow\">Lynis Tracker</p><h1>Devices</h1><p class=\"subhead\">Hosts reporting audit results, with their latest compliance status.</p></header>")
		p.raw("<section class=\"card\">")
		if len(devices) == 0 {
			p.raw("<p class=\"empty\">No devices yet. Point a Lynis collector at /api/lynis/upload/ to get started.</p></section>")
			return p.err
		}
		p.raw("<div class=\"table-wrap\"><table class=\"device-table\"><thead><tr><th>Hostname</th><th>IPv4</th><th>OS</th><th>Lynis</th><th>Warnings</th><th>Last update</th><th>Status</th></tr></thead><tbody>")
		for _, d := range devices {
			hostname := d.Hostname
			if hostname == "" {
				hostname = "(unknown)"
			}
			p.printf("<tr><td><a class=\"device-link\" href=\"/devices/%d\">%s</a></td><td class=\"mono\">%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td></tr>",
				d.ID, esc(hostname), esc(d.IPv4), esc(d.OSFullname), esc(d.LynisVersion), d.Warnings, formatWhen(d.LastUpdate), statusBadge(d.Compliant))
		}
		p.raw("</tbody></table></div></section>")
		return p.err
	})
	return layout("Lynis Tracker - Devices", body)
}

type deviceDetail struct {
	Device     db.Device
	Facts      *report.Facts
	Compliance *compliance.Result
	Activity   []ingest.Activity
	Events     []db.DeviceEvent
}

func deviceDetailPage(d deviceDetail) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		dev := d.Device
		p.printf("<header class=\"page-header\"><p class=\"eyebrow\">Device</p><h1>%s</h1><p class=\"subhead\">%s %s</p></header>",
			esc(dev.Hostname), esc(dev.OSFullname), statusBadge(dev.Compliant))

		p.raw("<section class=\"card\"><h2>Identity</h2><dl class=\"facts\">")
		for _, row := range [][2]string{
			{"Host ID", dev.HostID},
			{"Host ID 2", dev.HostID2},
			{"IPv4", dev.IPv4},
			{"MAC", dev.MAC},
			{"Lynis version", dev.LynisVersion},
			{"Last update", formatWhen(dev.LastUpdate)},
		} {
			p.printf("<dt>%s</dt><dd class=\"mono\">%s</dd>", row[0], esc(row[1]))
		}
		p.printf("<dt>Warnings</dt><dd>%d</dd>", dev.Warnings)
		p.raw("</dl></section>")

		writeCompliance(p, d.Compliance)
		writeActivity(p, d.Activity)
		writeEvents(p, d.Events)

		if d.Facts != nil {
			p.printf("<section class=\"card\"><h2>Latest report</h2><p class=\"subhead\">%d facts</p><details><summary>Show facts</summary><table class=\"device-table\"><tbody>", d.Facts.Len())
			for _, key := range d.Facts.Keys() {
				v, _ := d.Facts.Get(key)
				p.printf("<tr><td class=\"mono\">%s</td><td class=\"mono\">%s</td></tr>", esc(key), esc(v.Text()))
			}
			p.raw("</tbody></table></details></section>")
		}

		p.printf("<div class=\"page-actions\"><a class=\"back-link\" href=\"/api/v1/devices/%d/compliance\">Compliance JSON</a><a class=\"back-link\" href=\"/api/v1/devices/%d/activity\">Activity JSON</a><a class=\"back-link\" href=\"/devices\">Back to devices</a></div>", dev.ID, dev.ID)
		return p.err
	})
	return layout("Lynis Tracker - "+d.Device.Hostname, body)
}

func writeCompliance(p *pageWriter, res *compliance.Result) {
	p.raw("<section class=\"card\"><h2>Compliance</h2>")
	if res == nil {
		p.raw("<p class=\"empty\">No report stored yet.</p></section>")
		return
	}
	if len(res.Groups) == 0 {
		p.raw("<p class=\"empty\">No rule groups defined for this license.</p></section>")
		return
	}
	for _, g := range res.Groups {
		p.printf("<h3>%s %s</h3><ul class=\"rule-list\">", esc(g.Name), statusBadge(g.Compliant))
		for _, o := range g.Rules {
			state := "pass"
			switch {
			case !o.Enabled:
				state = "disabled"
			case !o.Known:
				state = "unknown"
			case !o.Compliant:
				state = "fail"
			}
			p.printf("<li class=\"rule rule--%s\"><span>%s</span><code>%s</code><span class=\"rule-state\">%s</span></li>", state, esc(o.Name), esc(o.Query), state)
		}
		p.raw("</ul>")
	}
	p.raw("</section>")
}

func writeActivity(p *pageWriter, activity []ingest.Activity) {
	p.raw("<section class=\"card\"><h2>Activity</h2>")
	if len(activity) == 0 {
		p.raw("<p class=\"empty\">No changes recorded.</p></section>")
		return
	}
	for _, a := range activity {
		p.printf("<h3>%s</h3>", a.CreatedAt.UTC().Format("2006-01-02 15:04"))
		if a.Diff.Empty() {
			p.raw("<p class=\"empty\">No visible changes.</p>")
		}
		p.raw("<ul class=\"diff\">")
		for _, key := range sortedKeys(a.Diff.Added) {
			p.printf("<li class=\"diff--added\">+ %s = %s</li>", esc(key), esc(a.Diff.Added[key].Text()))
		}
		for _, key := range sortedKeys(a.Diff.Removed) {
			p.printf("<li class=\"diff--removed\">- %s = %s</li>", esc(key), esc(a.Diff.Removed[key].Text()))
		}
		for _, c := range a.Diff.Changed {
			p.printf("<li class=\"diff--changed\">~ %s: %s &rarr; %s</li>", esc(c.Key), esc(c.Old.Text()), esc(c.New.Text()))
		}
		p.raw("</ul>")
		if a.Hidden > 0 {
			p.printf("<p class=\"subhead\">%d entries silenced</p>", a.Hidden)
		}
	}
	p.raw("</section>")
}

func writeEvents(p *pageWriter, events []db.DeviceEvent) {
	if len(events) == 0 {
		return
	}
	p.raw("<section class=\"card\"><h2>Events</h2><ul class=\"event-list\">")
	for _, e := range events {
		detail := e.Type
		if e.Metadata["new_status"] != "" {
			detail = fmt.Sprintf("%s: %s to %s", e.Type, e.Metadata["old_status"], e.Metadata["new_status"])
		}
		p.printf("<li><span class=\"mono\">%s</span> %s</li>", e.CreatedAt.UTC().Format("2006-01-02 15:04"), esc(detail))
	}
	p.raw("</ul></section>")
}

func sortedKeys(m map[string]report.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const layoutStyles = `<style>
:root {
  color-scheme: light;
  --bg: #eef2f0;
  --ink: #1c2428;
  --muted: #5d6b70;
  --card: rgba(255, 255, 255, 0.85);
  --stroke: rgba(28, 36, 40, 0.12);
  --accent: #2f6f6d;
  --ok: #2e7d4f;
  --bad: #b23b3b;
  --shadow: 0 12px 32px rgba(15, 23, 28, 0.1);
}

* {
  box-sizing: border-box;
}

body {
  margin: 0;
  min-height: 100vh;
  font-family: "Iowan Old Style", "Palatino Linotype", serif;
  color: var(--ink);
  background: linear-gradient(160deg, #f7f9f8, var(--bg));
}

.shell {
  max-width: 980px;
  margin: 0 auto;
  padding: 40px 24px 64px;
  display: grid;
  gap: 20px;
}

.page-header h1 {
  margin: 8px 0;
  font-size: clamp(1.8rem, 3vw, 2.4rem);
}

.eyebrow {
  text-transform: uppercase;
  letter-spacing: 0.2em;
  font-size: 0.72rem;
  color: var(--muted);
  margin: 0;
}

.subhead,
.empty {
  margin: 0;
  color: var(--muted);
}

.card {
  background: var(--card);
  border: 1px solid var(--stroke);
  border-radius: 14px;
  padding: 18px 22px;
  box-shadow: var(--shadow);
}

.table-wrap {
  overflow-x: auto;
}

.device-table {
  width: 100%;
  border-collapse: collapse;
}

.device-table th,
.device-table td {
  text-align: left;
  padding: 10px 8px;
  border-bottom: 1px solid var(--stroke);
}

.device-table th {
  font-size: 0.78rem;
  text-transform: uppercase;
  letter-spacing: 0.08em;
  color: var(--muted);
}

.device-link,
.back-link {
  color: var(--accent);
  text-decoration: none;
  font-weight: 600;
}

.badge {
  display: inline-block;
  border-radius: 999px;
  padding: 2px 10px;
  font-size: 0.8rem;
  color: white;
}

.badge--ok {
  background: var(--ok);
}

.badge--bad {
  background: var(--bad);
}

.facts {
  display: grid;
  grid-template-columns: max-content 1fr;
  gap: 6px 18px;
}

.facts dt {
  color: var(--muted);
}

.facts dd {
  margin: 0;
}

.rule-list,
.diff,
.event-list {
  list-style: none;
  margin: 0;
  padding: 0;
  display: grid;
  gap: 6px;
}

.rule {
  display: flex;
  gap: 12px;
  justify-content: space-between;
}

.rule--fail .rule-state,
.diff--removed {
  color: var(--bad);
}

.rule--pass .rule-state,
.diff--added {
  color: var(--ok);
}

.rule--unknown .rule-state,
.rule--disabled .rule-state {
  color: var(--muted);
}

.mono,
code,
.diff {
  font-family: "SFMono-Regular", "Fira Mono", monospace;
}

.page-actions {
  display: flex;
  gap: 16px;
  flex-wrap: wrap;
}
</style>`
