package parser

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"
)

// tagLocalizer prefixes non-ASCII text with "[en] " and records every call.
type tagLocalizer struct {
	mu    sync.Mutex
	calls []string
}

func (l *tagLocalizer) Localize(_ context.Context, text string) string {
	l.mu.Lock()
	l.calls = append(l.calls, text)
	l.mu.Unlock()
	for _, r := range text {
		if r >= utf8.RuneSelf {
			return "[en] " + text
		}
	}
	return text
}

type fakeConverter struct {
	amount, currency string
}

func (c *fakeConverter) ConvertText(_ context.Context, amountText, currency string) string {
	c.amount, c.currency = amountText, currency
	return "converted " + strings.TrimSpace(amountText) + " " + currency
}

const listingPage = `<html><body><table>
<tbody class="CustomReactClasses-MuiTableBody-root">
  <tr class="CustomReactClasses-MuiTableRow-root"><td>#</td><td>Notice</td><td>Description</td></tr>
  <tr class="CustomReactClasses-MuiTableRow-root">
    <td><input type="checkbox"></td>
    <td><a class="css-q5fadx" href="/en/notice/-/detail/123456-2024">123456-2024</a></td>
    <td><ul>
      <li class="css-1evkt30"><span>Lieferung von </span><span>Adalimumab-Biosimilars für Universitätskliniken</span></li>
      <li class="css-1evkt30"><span>second description</span></li>
    </ul></td>
    <td> Germany </td>
    <td><ul><li class="css-v9egcd">02/01/2024</li><li class="css-v9egcd">05/01/2024</li></ul></td>
    <td><ul><li class="css-v9egcd">15/02/2024</li><li class="css-v9egcd">20/02/2024</li></ul></td>
  </tr>
</tbody></table></body></html>`

const summaryDetailPage = `<html><body>
<section id="summary">
  <div class="summary-section">
    <div><span class="label">Buyer</span><span class="data"><a href="#org">Universitätsklinikum Köln</a></span></div>
    <div><span class="label">Email</span><span class="data">einkauf@uk-koeln.de</span></div>
  </div>
  <div class="summary-section">
    <div><span class="label">Estimated value excluding VAT</span><span class="data">1.234.567,89</span><span class="data">EUR</span></div>
  </div>
  <div><span class="bold">LOT-0001</span><span>Adalimumab</span></div>
  <div class="summary-section">
    <div><span class="label">Start date</span><span class="data">01/03/2024</span></div>
    <div><span class="label">Duration end date</span><span class="data">28/02/2026</span></div>
  </div>
</section>
<div id="formats-accordion">
  <div class="css-188ozac">
    <h4>PDF</h4>
    <a id="DE" class="download-pdf" href="https://ted.europa.eu/de/notice/123456-2024/pdf">DE</a>
    <a id="EN" class="download-pdf" href="https://ted.europa.eu/en/notice/123456-2024/pdf">EN</a>
  </div>
  <div class="css-188ozac"><h4>XML</h4><a id="EN" class="download-xml" href="/xml">EN</a></div>
</div>
<div id="section1_1"><span data-labels-key="auxiliary|text|buyer">Buyer</span></div>
<div class="section-content">
  <span class="bold">ORG-0001</span>
  <div><span class="label">Official name</span><span class="data">Universitätsklinikum Köln</span></div>
  <div><span class="label">Registration number</span><span class="data">DE-HRB-1234</span></div>
  <div><span class="label">Email</span><span class="data">einkauf@uk-koeln.de</span></div>
  <div><span class="bold">Roles of this organisation</span>
    <div><span class="label">Buyer</span><span class="label">Buyer</span><span class="label">Payer</span></div>
  </div>
</div>
<div id="section1_2"><span data-labels-key="auxiliary|text|organisations">Organisations</span></div>
<div class="section-content">
  <span class="bold">ORG-0002</span>
  <div><span class="label">Official name</span><span class="data">Vergabekammer Rheinland</span></div>
  <div><span class="bold">Roles of this organisation</span>
    <div><span class="label">Review organisation</span></div>
  </div>
</div>
<div class="section-content">
  <span class="bold">ORG-0003</span>
  <div><span class="label">Registration number</span><span class="data">nameless</span></div>
</div>
<div id="section10"><span data-labels-key="auxiliary|text|notice-information">Notice information</span></div>
<div class="section-content">
  <div><span class="label">Notice identifier/version</span><span class="data">3f2a9c10-11</span><span class="data">01</span></div>
</div>
</body></html>`

const fallbackDetailPage = `<html><body>
<div id="section1"><span data-labels-key="Part I: Contracting authority">Part I</span></div>
<div class="section-content">
  <span class="bold">ORG-0001</span>
  <div><span class="label">Official name</span> Hospital Central de Lisboa </div>
  <div><span class="label">Email</span><span class="data">compras@hcl.pt</span></div>
</div>
<div id="section2"><span data-labels-key="auxiliary|text|procedure">Procedure</span>
  <div><span class="label">Estimated total value</span><span class="data">250,000.00</span><span class="data">USD</span></div>
  <div class="duration">
    <span class="label">Start date</span><span class="data">2024-05-01</span>
    <span class="label">End date</span><span class="data">2025-04-30</span>
  </div>
</div>
</body></html>`
