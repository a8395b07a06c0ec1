package web

// Portfolio dashboard: total value chart fed by the snapshot stream and a live notification feed.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Skinwatch</title>
  <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
  <link href="https://fonts.googleapis.com/css2?family=Press+Start+2P&family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root {
      --bg:#ffffff;
      --ink:#111111;
      --ink-mid:#4d4d4d;
      --panel:#f6f6f6;
    }
    * { box-sizing:border-box; }
    body {
      margin:0;
      padding:2rem;
      background:var(--bg);
      color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app {
      max-width:1200px;
      margin:0 auto;
      background:var(--panel);
      border:3px solid var(--ink);
      padding:2rem;
      box-shadow:12px 12px 0 rgba(0,0,0,.15);
      display:grid;
      grid-template-columns:1fr 340px;
      gap:2rem;
    }
    .eyebrow {
      font-family:'Press Start 2P','Space Mono',monospace;
      font-size:.55rem;
      text-transform:uppercase;
      letter-spacing:.2em;
    }
    .equity {
      border:3px solid var(--ink);
      padding:1.2rem;
      background:#fff;
      margin-bottom:1rem;
    }
    .equity .value { font-size:1.8rem; font-weight:700; }
    .equity .meta { font-size:.7rem; color:var(--ink-mid); margin-top:.4rem; }
    canvas { background:#fff; border:2px solid var(--ink); }
    .feed { display:flex; flex-direction:column; gap:.8rem; max-height:80vh; overflow-y:auto; }
    .card {
      border:2px solid var(--ink);
      padding:.8rem;
      background:#fff;
      font-size:.7rem;
      white-space:pre-line;
    }
    .card time { display:block; color:var(--ink-mid); margin-bottom:.3rem; }
  </style>
</head>
<body>
  <div id="app">
    <div>
      <p class="eyebrow">Skinwatch portfolio</p>
      <div class="equity">
        <div class="value" id="total">—</div>
        <div class="meta" id="profit"></div>
      </div>
      <canvas id="chart" height="140"></canvas>
    </div>
    <div>
      <p class="eyebrow">Notifications</p>
      <div class="feed" id="feed"></div>
    </div>
  </div>
  <script>
    const chart = new Chart(document.getElementById('chart'), {
      type: 'line',
      data: { labels: [], datasets: [{ label: 'Total', data: [], borderColor: '#111', borderWidth: 2, pointRadius: 0 }] },
      options: { animation: false, plugins: { legend: { display: false } } }
    });

    function loadSummary() {
      fetch('/api/portfolio').then(r => r.json()).then(p => {
        document.getElementById('total').textContent = Number(p.totalValue).toFixed(2);
        document.getElementById('profit').textContent =
          'items ' + p.totalItems + ' · profit ' + Number(p.totalProfit).toFixed(2) + ' (' + Number(p.profitPercent).toFixed(2) + '%)';
      }).catch(() => {});
    }

    const snapshots = new EventSource('/snapshots/stream');
    snapshots.addEventListener('snapshot', e => {
      const s = JSON.parse(e.data);
      if (s.subject !== 'portfolio-total') return;
      chart.data.labels.push(new Date(s.ts).toLocaleString());
      chart.data.datasets[0].data.push(Number(s.value));
      if (chart.data.labels.length > 500) {
        chart.data.labels.shift();
        chart.data.datasets[0].data.shift();
      }
      chart.update();
      loadSummary();
    });

    const notifications = new EventSource('/notifications/stream');
    notifications.addEventListener('notification', e => {
      const b = JSON.parse(e.data);
      const card = document.createElement('div');
      card.className = 'card';
      const lines = b.events.map(ev => ev.kind + ' ' + (ev.item || 'portfolio') + ' ' + Number(ev.current).toFixed(2));
      if (b.omitted > 0) lines.push('… and ' + b.omitted + ' more');
      const ts = document.createElement('time');
      ts.textContent = new Date(b.at).toLocaleString() + ' · owner ' + b.owner;
      card.appendChild(ts);
      card.appendChild(document.createTextNode(lines.join('\n')));
      document.getElementById('feed').prepend(card);
    });

    loadSummary();
  </script>
</body>
</html>`
