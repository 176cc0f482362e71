package probe

import (
	"context"
	"errors"
	"fmt"
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

const smbPort = 445

// smbIdentity is what a host reveals about itself over anonymous SMB.
type smbIdentity struct {
	ComputerName string
	Domain       string
	OSVersion    string
	Source       string
}

// fields renders the identity as host metadata.
func (id *smbIdentity) fields() map[string]string {
	fields := make(map[string]string, 4)
	if id.ComputerName != "" {
		fields["computerName"] = id.ComputerName
	}
	if id.Domain != "" {
		fields["domain"] = id.Domain
	}
	if id.OSVersion != "" {
		fields["osVersion"] = id.OSVersion
	}
	fields["source"] = id.Source
	return fields
}

// lookupSMBIdentity asks the wkssvc pipe first because it carries domain and
// OS version, then falls back to srvsvc, which many NAS stacks expose
// instead. Anonymous access only; nil means the host would not talk to us.
func lookupSMBIdentity(ctx context.Context, host string) *smbIdentity {
	if ctx == nil || ctx.Err() != nil {
		return nil
	}

	if id, err := querySMBPipe(ctx, host, "wkssvc", fetchWorkstationIdentity); err == nil && id != nil {
		return id
	}
	if id, err := querySMBPipe(ctx, host, "srvsvc", fetchServerIdentity); err == nil && id != nil {
		return id
	}
	return nil
}

type smbQueryFunc func(context.Context, dcerpc.Conn) (smbIdentity, error)

func querySMBPipe(parentCtx context.Context, host, pipe string, fn smbQueryFunc) (*smbIdentity, error) {
	if parentCtx.Err() != nil {
		return nil, parentCtx.Err()
	}

	callCtx, cancel := context.WithTimeout(parentCtx, 4*time.Second)
	secCtx := gssapi.NewSecurityContext(callCtx,
		gssapi.WithCredential(credential.Anonymous()),
		gssapi.WithMechanismFactory(ssp.NTLM),
		gssapi.WithMechanismFactory(ssp.SPNEGO),
	)

	conn, err := dcerpc.Dial(secCtx, host,
		dcerpc.WithEndpoint("ncacn_np:["+pipe+"]"),
		dcerpc.WithTimeout(3*time.Second),
		dcerpc.WithSMBPort(smbPort),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	defer func() {
		_ = conn.Close(secCtx)
	}()
	defer cancel()

	id, err := fn(secCtx, conn)
	if err != nil {
		return nil, err
	}
	id.Source = pipe
	if id.ComputerName == "" && id.Domain == "" {
		return nil, errors.New("empty SMB identity")
	}
	return &id, nil
}

func fetchWorkstationIdentity(ctx context.Context, conn dcerpc.Conn) (smbIdentity, error) {
	client, err := wkssvc.NewWkssvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return smbIdentity{}, err
	}

	resp, err := client.GetInfo(ctx, &wkssvc.GetInfoRequest{Level: 100})
	if err != nil {
		return smbIdentity{}, err
	}
	if resp.WorkstationInfo == nil {
		return smbIdentity{}, errors.New("wkssvc: missing workstation info")
	}
	data, ok := resp.WorkstationInfo.GetValue().(*wkssvc.WorkstationInfo100)
	if !ok || data == nil {
		return smbIdentity{}, errors.New("wkssvc: unexpected info type")
	}

	id := smbIdentity{
		ComputerName: trimSMBValue(data.ComputerName),
		Domain:       trimSMBValue(data.LANGroup),
	}
	if data.VerMajor > 0 {
		id.OSVersion = fmt.Sprintf("%d.%d", data.VerMajor, data.VerMinor)
	}
	return id, nil
}

func fetchServerIdentity(ctx context.Context, conn dcerpc.Conn) (smbIdentity, error) {
	client, err := srvsvc.NewSrvsvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return smbIdentity{}, err
	}

	resp, err := client.GetInfo(ctx, &srvsvc.GetInfoRequest{Level: 100})
	if err != nil {
		return smbIdentity{}, err
	}
	if resp.Info == nil {
		return smbIdentity{}, errors.New("srvsvc: missing server info")
	}

	switch data := resp.Info.GetValue().(type) {
	case *dtyp.ServerInfo100:
		if data == nil {
			return smbIdentity{}, errors.New("srvsvc: empty server info")
		}
		return smbIdentity{ComputerName: trimSMBValue(data.Name)}, nil
	default:
		return smbIdentity{}, errors.New("srvsvc: unsupported info type")
	}
}

func trimSMBValue(value string) string {
	return strings.TrimSpace(strings.Trim(value, "\x00"))
}
