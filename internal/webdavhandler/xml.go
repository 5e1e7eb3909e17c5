package webdavhandler

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/marble-dav/marble/internal/tenant"
)

const davNamespace = "DAV:"

type multistatus struct {
	XMLName   xml.Name         `xml:"D:multistatus"`
	DAV       string           `xml:"xmlns:D,attr"`
	Responses []davResponse    `xml:"D:response"`
}

type davResponse struct {
	Href     string       `xml:"D:href"`
	Propstat davPropstat  `xml:"D:propstat"`
}

type davPropstat struct {
	Prop   davProp `xml:"D:prop"`
	Status string  `xml:"D:status"`
}

type davProp struct {
	DisplayName   string            `xml:"D:displayname"`
	ContentLength *int64            `xml:"D:getcontentlength,omitempty"`
	ContentType   string            `xml:"D:getcontenttype,omitempty"`
	LastModified  string            `xml:"D:getlastmodified,omitempty"`
	ResourceType  *davResourceType  `xml:"D:resourcetype"`
	ETag          string            `xml:"D:getetag,omitempty"`
}

type davResourceType struct {
	Collection *struct{} `xml:"D:collection,omitempty"`
}

// httpDate renders t in the RFC 1123 form WebDAV's getlastmodified property
// expects (the same format HTTP's Last-Modified header uses).
func httpDate(t time.Time) string { return t.UTC().Format(http.TimeFormat) }

func propEntry(path string, m *tenant.FileMetadata) davResponse {
	displayName := baseNameXML(path)
	prop := davProp{
		DisplayName:  displayName,
		LastModified: httpDate(m.LastModified),
		ResourceType: &davResourceType{},
	}
	if m.IsDirectory {
		prop.ResourceType.Collection = &struct{}{}
	} else {
		size := m.Size
		prop.ContentLength = &size
		prop.ContentType = m.ContentType
		prop.ETag = fmt.Sprintf(`"%s"`, m.ContentHash)
	}
	return davResponse{
		Href: encodeHref(path),
		Propstat: davPropstat{
			Prop:   prop,
			Status: "HTTP/1.1 200 OK",
		},
	}
}

func baseNameXML(path string) string {
	if path == "/" {
		return "/"
	}
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// writeMultistatus serializes entries as a PROPFIND 207 Multi-Status body.
func writeMultistatus(w http.ResponseWriter, entries []davResponse) {
	body := multistatus{DAV: davNamespace, Responses: entries}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	_ = enc.Encode(body)
}

// anyElement captures an XML element's name while ignoring its content;
// used to decode the property names a PROPPATCH request references
// without caring about their (unsupported) values.
type anyElement struct {
	XMLName xml.Name
}

type propPatchContainer struct {
	Items []anyElement `xml:",any"`
}

type propPatchOp struct {
	Prop propPatchContainer `xml:"prop"`
}

type propertyUpdate struct {
	XMLName xml.Name      `xml:"propertyupdate"`
	Set     []propPatchOp `xml:"set"`
	Remove  []propPatchOp `xml:"remove"`
}

// writePropPatchResponse answers a PROPPATCH with a single 207 response
// for path holding one empty prop and a "200 OK" status. Nothing is
// stored; the property names decoded into body are not listed in the
// response, so there is no status per property.
func writePropPatchResponse(w http.ResponseWriter, path string, body propertyUpdate) {
	resp := davResponse{
		Href: encodeHref(path),
		Propstat: davPropstat{
			Prop:   davProp{},
			Status: "HTTP/1.1 200 OK",
		},
	}
	writeMultistatus(w, []davResponse{resp})
}

type lockDiscovery struct {
	XMLName    xml.Name       `xml:"D:prop"`
	DAV        string         `xml:"xmlns:D,attr"`
	LockDesc   lockActiveLock `xml:"D:lockdiscovery>D:activelock"`
}

type lockActiveLock struct {
	LockType  struct{}    `xml:"D:locktype>D:write"`
	LockScope struct{}    `xml:"D:lockscope>D:exclusive"`
	Depth     string      `xml:"D:depth"`
	Owner     string      `xml:"D:owner,omitempty"`
	Timeout   string      `xml:"D:timeout"`
	LockToken lockTokenEl `xml:"D:locktoken"`
}

type lockTokenEl struct {
	Href string `xml:"D:href"`
}

func writeLockDiscovery(w http.ResponseWriter, depth, owner, token string, timeout time.Duration) {
	body := lockDiscovery{
		DAV: davNamespace,
		LockDesc: lockActiveLock{
			Depth:     depth,
			Owner:     owner,
			Timeout:   fmt.Sprintf("Second-%d", int(timeout.Seconds())),
			LockToken: lockTokenEl{Href: token},
		},
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Lock-Token", "<"+token+">")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	_ = enc.Encode(body)
}
