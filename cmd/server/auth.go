package main

import (
	"context"
	"slices"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type peerIDContextKey struct{}

func peerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(peerIDContextKey{}).(string)
	return id, ok
}

func withPeerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, peerIDContextKey{}, id)
}

// peerIDFromTLS returns the trust domain of the first SPIFFE URI SAN in the
// client certificate, e.g. spiffe://lab-ops/cli -> "lab-ops".
func peerIDFromTLS(ctx context.Context) (string, bool) {
	if id, ok := peerIDFromContext(ctx); ok {
		return id, true
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p == nil {
		return "", false
	}
	ti, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", false
	}
	certs := ti.State.PeerCertificates
	if len(certs) == 0 || certs[0] == nil {
		return "", false
	}

	for _, uri := range certs[0].URIs {
		if uri != nil && uri.Scheme == "spiffe" {
			return uri.Host, true
		}
	}
	return "", false
}

// peerAuthorizer admits mTLS clients carrying a SPIFFE ID, optionally
// restricted to an allowlist of trust domains.
type peerAuthorizer struct {
	allowed []string
}

func (a peerAuthorizer) authorize(ctx context.Context) (context.Context, error) {
	id, ok := peerIDFromTLS(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	if len(a.allowed) > 0 && !slices.Contains(a.allowed, id) {
		return nil, status.Errorf(codes.PermissionDenied, "peer %q is not allowed", id)
	}
	return withPeerID(ctx, id), nil
}

func (a peerAuthorizer) unary(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type streamWithCtx struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *streamWithCtx) Context() context.Context { return s.ctx }

func (a peerAuthorizer) stream(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := a.authorize(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, &streamWithCtx{ServerStream: ss, ctx: ctx})
}
