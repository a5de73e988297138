//go:build linux

package credstore

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

func init() {
	provider = secretServiceProvider{}
}

// secretServiceProvider talks to the freedesktop.org Secret Service
// (org.freedesktop.secrets) over the session D-Bus, the same transport
// the teacher's modules/keyring uses on Linux. It uses the "plain"
// (unencrypted) session algorithm, which is what every Secret Service
// implementation (GNOME Keyring, KWallet's compat shim) supports
// unconditionally; the D-Bus session itself is already local-only IPC.
type secretServiceProvider struct{}

const (
	secretsBusName    = "org.freedesktop.secrets"
	secretsObjectPath = dbus.ObjectPath("/org/freedesktop/secrets")
	collectionPath    = dbus.ObjectPath("/org/freedesktop/secrets/aliases/default")
	serviceAttr       = "cairn-service"
)

func (secretServiceProvider) session() (*dbus.Conn, dbus.BusObject, dbus.ObjectPath, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, nil, "", fmt.Errorf("credstore: dbus session: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, nil, "", fmt.Errorf("credstore: dbus auth: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, nil, "", fmt.Errorf("credstore: dbus hello: %w", err)
	}
	svc := conn.Object(secretsBusName, secretsObjectPath)
	var sessionPath dbus.ObjectPath
	var out dbus.Variant
	if err := svc.Call("org.freedesktop.Secret.Service.OpenSession", 0, "plain", dbus.MakeVariant("")).Store(&out, &sessionPath); err != nil {
		conn.Close()
		return nil, nil, "", fmt.Errorf("credstore: open session: %w", err)
	}
	return conn, svc, sessionPath, nil
}

type secretItem struct {
	Session dbus.ObjectPath
	Params  []byte
	Value   []byte
	Type    string
}

func (p secretServiceProvider) Find(ctx context.Context, target string) (*Cred, error) {
	conn, svc, session, err := p.session()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var unlocked, locked []dbus.ObjectPath
	attrs := map[string]string{serviceAttr: target}
	if err := svc.Call("org.freedesktop.Secret.Service.SearchItems", 0, attrs).Store(&unlocked, &locked); err != nil {
		return nil, fmt.Errorf("credstore: search items: %w", err)
	}
	if len(unlocked) == 0 {
		return nil, ErrNotFound
	}
	item := conn.Object(secretsBusName, unlocked[0])
	var secret secretItem
	if err := item.Call("org.freedesktop.Secret.Item.GetSecret", 0, session).Store(&secret); err != nil {
		return nil, fmt.Errorf("credstore: get secret: %w", err)
	}
	prop, err := item.GetProperty("org.freedesktop.Secret.Item.Attributes")
	if err != nil {
		return nil, fmt.Errorf("credstore: item attributes: %w", err)
	}
	itemAttrs, _ := prop.Value().(map[string]string)
	return &Cred{UserName: itemAttrs["username"], Secret: string(secret.Value)}, nil
}

func (p secretServiceProvider) Store(ctx context.Context, target string, c *Cred) error {
	conn, svc, session, err := p.session()
	if err != nil {
		return err
	}
	defer conn.Close()

	collection := conn.Object(secretsBusName, collectionPath)
	props := map[string]dbus.Variant{
		"org.freedesktop.Secret.Item.Label": dbus.MakeVariant("cairn: " + target),
		"org.freedesktop.Secret.Item.Attributes": dbus.MakeVariant(map[string]string{
			serviceAttr: target,
			"username":  c.UserName,
		}),
	}
	secret := secretItem{Session: session, Params: nil, Value: []byte(c.Secret), Type: "text/plain"}

	var itemPath, promptPath dbus.ObjectPath
	if err := collection.Call("org.freedesktop.Secret.Collection.CreateItem", 0, props, secret, true).Store(&itemPath, &promptPath); err != nil {
		return fmt.Errorf("credstore: create item: %w", err)
	}
	return nil
}

func (p secretServiceProvider) Discard(ctx context.Context, target string) error {
	conn, svc, _, err := p.session()
	if err != nil {
		return err
	}
	defer conn.Close()

	var unlocked, locked []dbus.ObjectPath
	attrs := map[string]string{serviceAttr: target}
	if err := svc.Call("org.freedesktop.Secret.Service.SearchItems", 0, attrs).Store(&unlocked, &locked); err != nil {
		return fmt.Errorf("credstore: search items: %w", err)
	}
	if len(unlocked) == 0 {
		return ErrNotFound
	}
	item := conn.Object(secretsBusName, unlocked[0])
	var promptPath dbus.ObjectPath
	return item.Call("org.freedesktop.Secret.Item.Delete", 0).Store(&promptPath)
}
