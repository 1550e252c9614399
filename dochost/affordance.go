package dochost

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element ids of the injected editing affordances.
const (
	editStyleID  = "docforge-edit-style"
	captureJSID  = "docforge-capture"
	editHintText = "Tap any highlighted field to edit, then save or export."
)

// prepare turns raw template markup into the editing-enabled document: logo
// reference rewritten for the hosting mode, editable regions outlined, an
// edit hint prepended, the auto-capture script appended, and (served mode
// only) a base reference so relative assets resolve.
func (h *Host) prepare(src, sessionID, logoRef string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("dochost: parse template: %w", err)
	}

	head := findElement(doc, atom.Head)
	body := findElement(doc, atom.Body)
	if head == nil || body == nil {
		return "", fmt.Errorf("dochost: template has no head or body")
	}

	rewriteLogo(doc, logoRef)

	if h.cfg.Mode == ModeServed {
		base := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Base,
			Data:     "base",
			Attr:     []html.Attribute{{Key: "href", Val: h.assetBase()}},
		}
		head.InsertBefore(base, head.FirstChild)
	}

	style := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Style,
		Data:     "style",
		Attr:     []html.Attribute{{Key: "id", Val: editStyleID}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: affordanceCSS})
	head.AppendChild(style)

	hint := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr:     []html.Attribute{{Key: "class", Val: "docforge-edit-hint"}},
	}
	hint.AppendChild(&html.Node{Type: html.TextNode, Data: editHintText})
	body.InsertBefore(hint, body.FirstChild)

	script := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "id", Val: captureJSID}},
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: h.captureScript(sessionID)})
	body.AppendChild(script)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", fmt.Errorf("dochost: render: %w", err)
	}
	return sb.String(), nil
}

const affordanceCSS = `
[contenteditable="true"], input:not([type=checkbox]):not([type=radio]), textarea, select {
  outline: 1px dashed #7aa7e0;
  outline-offset: 2px;
}
.docforge-edit-hint {
  position: sticky;
  top: 0;
  background: #eef4fd;
  color: #2b5d9b;
  font: 12px/1.6 sans-serif;
  padding: 4px 10px;
  border-radius: 4px;
  margin-bottom: 12px;
}
`

// captureJS serializes the document with live form-control state made
// durable. Typing updates an element's value/checked property, not its
// attribute, so outerHTML alone would still carry the original template
// values: the snippet writes each control's live state back into markup
// (value attributes, checked/selected presence, textarea text) and also
// collects it as a form-state array the host re-applies after parsing.
const captureJS = `
  var capture = function () {
    var state = [];
    var controls = document.querySelectorAll("input, textarea, select");
    for (var i = 0; i < controls.length; i++) {
      var el = controls[i];
      var entry = { id: el.id || "", name: el.getAttribute("name") || "", value: "" };
      var tag = el.tagName.toLowerCase();
      if (tag === "input") {
        var type = (el.getAttribute("type") || "text").toLowerCase();
        if (type === "checkbox" || type === "radio") {
          entry.checked = el.checked;
          if (el.checked) { el.setAttribute("checked", ""); } else { el.removeAttribute("checked"); }
        } else {
          entry.value = el.value;
          el.setAttribute("value", el.value);
        }
      } else if (tag === "textarea") {
        entry.value = el.value;
        el.textContent = el.value;
      } else {
        entry.value = el.value;
        for (var j = 0; j < el.options.length; j++) {
          if (el.options[j].selected) { el.options[j].setAttribute("selected", ""); } else { el.options[j].removeAttribute("selected"); }
        }
      }
      state.push(entry);
    }
    return { html: document.documentElement.outerHTML, form_state: state };
  };
`

// captureScript returns the auto-capture snippet for the hosting mode.
// Served mode posts the serialized document back over HTTP; embedded mode
// posts a bridge message. Both run on a periodic timer as a durability
// safety net and answer explicit serialization requests.
func (h *Host) captureScript(sessionID string) string {
	intervalMs := strconv.FormatInt(h.cfg.AutoCaptureInterval.Milliseconds(), 10)

	if h.cfg.Mode == ModeServed {
		endpoint := strings.TrimRight(h.cfg.BaseURL, "/") + "/api/sessions/" + sessionID + "/content"
		return `
(function () {` + captureJS + `
  var push = function () {
    fetch("` + endpoint + `", {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify(capture())
    }).catch(function () {});
  };
  setInterval(push, ` + intervalMs + `);
  document.addEventListener("docforge-serialize", push);
})();
`
	}

	return `
(function () {` + captureJS + `
  var send = function () {
    try {
      var snap = capture();
      snap.type = "content";
      if (window.docforgeBridge && window.docforgeBridge.postMessage) {
        window.docforgeBridge.postMessage(JSON.stringify(snap));
      }
    } catch (e) {
      if (window.docforgeBridge && window.docforgeBridge.postMessage) {
        window.docforgeBridge.postMessage(JSON.stringify({ type: "error", message: String(e) }));
      }
    }
  };
  setInterval(send, ` + intervalMs + `);
  document.addEventListener("docforge-serialize", send);
})();
`
}

// rewriteLogo replaces the known relative logo reference with ref.
func rewriteLogo(doc *html.Node, ref string) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			for i := range n.Attr {
				if n.Attr[i].Key == "src" && n.Attr[i].Val == logoAssetName {
					n.Attr[i].Val = ref
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
