package scan

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	srvsvc "github.com/oiweiwei/go-msrpc/msrpc/srvs/srvsvc/v3"
	wkssvc "github.com/oiweiwei/go-msrpc/msrpc/wkst/wkssvc/v1"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/gssapi"
)

// smbFingerprinter confirms SMB file sharing with an anonymous wkssvc query
// over the named pipe, falling back to srvsvc. Either pipe answering
// identifies the host as a file-share endpoint; names and domain are a bonus.
type smbFingerprinter struct {
	timeout time.Duration
}

func (f *smbFingerprinter) Name() string { return "smb" }

func (f *smbFingerprinter) Match(port uint16) bool {
	return port == 445 || port == 139
}

func (f *smbFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	details := map[string]string{}

	if name, domain, ok := f.query(ctx, host, "wkssvc", fetchWorkstationName); ok {
		details["computer_name"] = name
		if domain != "" {
			details["domain"] = domain
		}
	} else if name, _, ok := f.query(ctx, host, "srvsvc", fetchServerName); ok {
		details["computer_name"] = name
	} else {
		// Anonymous RPC refused; the open port plus a rejected session is
		// weaker evidence, so leave identification to the banner path.
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "SMB",
		Details: details,
	}
	desc.Operations = append(desc.Operations,
		Capability{
			Name:        "Browse shared folders",
			Description: "Access SMB network shares",
			Available:   true,
			Protocol:    "smb",
			Port:        probe.Port,
			Operation:   "browse",
		},
		Capability{
			Name:        "Copy files over SMB",
			Description: "Transfer files to and from network shares",
			Available:   true,
			Protocol:    "smb",
			Port:        probe.Port,
			Operation:   "transfer",
		},
	)
	return desc
}

type smbInfoFunc func(context.Context, dcerpc.Conn) (string, string, error)

func (f *smbFingerprinter) query(parentCtx context.Context, host, pipe string, fn smbInfoFunc) (string, string, bool) {
	if parentCtx.Err() != nil {
		return "", "", false
	}

	callCtx, cancel := context.WithTimeout(parentCtx, f.timeout)
	defer cancel()

	secCtx := gssapi.NewSecurityContext(callCtx,
		gssapi.WithCredential(credential.Anonymous()),
		gssapi.WithMechanismFactory(ssp.NTLM),
		gssapi.WithMechanismFactory(ssp.SPNEGO),
	)

	conn, err := dcerpc.Dial(secCtx, host,
		dcerpc.WithEndpoint("ncacn_np:["+pipe+"]"),
		dcerpc.WithTimeout(f.timeout),
		dcerpc.WithSMBPort(445),
	)
	if err != nil {
		return "", "", false
	}
	defer func() {
		_ = conn.Close(secCtx)
	}()

	name, domain, err := fn(secCtx, conn)
	if err != nil || (name == "" && domain == "") {
		return "", "", false
	}
	return name, domain, true
}

func fetchWorkstationName(ctx context.Context, conn dcerpc.Conn) (string, string, error) {
	client, err := wkssvc.NewWkssvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return "", "", err
	}
	resp, err := client.GetInfo(ctx, &wkssvc.GetInfoRequest{Level: 100})
	if err != nil {
		return "", "", err
	}
	if resp.WorkstationInfo == nil {
		return "", "", errNoSMBInfo
	}
	data, ok := resp.WorkstationInfo.GetValue().(*wkssvc.WorkstationInfo100)
	if !ok || data == nil {
		return "", "", errNoSMBInfo
	}
	return trimSMBValue(data.ComputerName), trimSMBValue(data.LANGroup), nil
}

func fetchServerName(ctx context.Context, conn dcerpc.Conn) (string, string, error) {
	client, err := srvsvc.NewSrvsvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return "", "", err
	}
	resp, err := client.GetInfo(ctx, &srvsvc.GetInfoRequest{Level: 100})
	if err != nil {
		return "", "", err
	}
	if resp.Info == nil {
		return "", "", errNoSMBInfo
	}
	if data, ok := resp.Info.GetValue().(*dtyp.ServerInfo100); ok && data != nil {
		return trimSMBValue(data.Name), "", nil
	}
	return "", "", errNoSMBInfo
}

var errNoSMBInfo = errors.New("smb: no identification returned")

func trimSMBValue(value string) string {
	return strings.TrimSpace(strings.Trim(value, "\x00"))
}
