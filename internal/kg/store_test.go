package kg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/types"
)

type fakeBackend struct {
	list       []types.KnowledgeGraphInfo
	exportResp types.KgOperationResponse
	exportErr  error
	imported   []string
	deleted    []string
}

func (f *fakeBackend) KgList(ctx context.Context) ([]types.KnowledgeGraphInfo, error) {
	return f.list, nil
}

func (f *fakeBackend) KgExport(ctx context.Context, name, description string) (types.KgOperationResponse, error) {
	return f.exportResp, f.exportErr
}

func (f *fakeBackend) KgImport(ctx context.Context, name string) (types.KgOperationResponse, error) {
	f.imported = append(f.imported, name)
	return types.KgOperationResponse{Message: "imported " + name, Success: true}, nil
}

func (f *fakeBackend) KgDelete(ctx context.Context, name string) (types.KgOperationResponse, error) {
	f.deleted = append(f.deleted, name)
	return types.KgOperationResponse{Message: "deleted", Success: true}, nil
}

func (f *fakeBackend) KgCurrent(ctx context.Context) (types.CurrentKgInfo, error) {
	return types.CurrentKgInfo{Database: "neo4j", Status: "online"}, nil
}

func TestStore_ExportRequiresName(t *testing.T) {
	s := NewStore(&fakeBackend{}, zap.NewNop())
	if _, err := s.Export(context.Background(), "  ", "desc"); err == nil {
		t.Error("blank name should be rejected without hitting the backend")
	}
}

func TestStore_ExportSurfacesTransportError(t *testing.T) {
	b := &fakeBackend{exportErr: errors.New("backend down")}
	s := NewStore(b, zap.NewNop())
	if _, err := s.Export(context.Background(), "snap", ""); err == nil {
		t.Error("transport failure must propagate")
	}
}

func TestStore_UnsuccessfulAckBecomesError(t *testing.T) {
	b := &fakeBackend{exportResp: types.KgOperationResponse{Message: "disk full", Success: false}}
	s := NewStore(b, zap.NewNop())
	_, err := s.Export(context.Background(), "snap", "")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("server rejection should carry its message, got %v", err)
	}
}

func TestStore_ImportAndDelete(t *testing.T) {
	b := &fakeBackend{}
	s := NewStore(b, zap.NewNop())

	msg, err := s.Import(context.Background(), "snap")
	if err != nil || msg != "imported snap" {
		t.Errorf("import: %q, %v", msg, err)
	}
	if _, err := s.Delete(context.Background(), "snap"); err != nil {
		t.Errorf("delete: %v", err)
	}
	if len(b.imported) != 1 || len(b.deleted) != 1 {
		t.Errorf("backend calls: imported=%v deleted=%v", b.imported, b.deleted)
	}
}

func TestStore_Current(t *testing.T) {
	s := NewStore(&fakeBackend{}, zap.NewNop())
	info, err := s.Current(context.Background())
	if err != nil || info.Database != "neo4j" {
		t.Errorf("current: %+v, %v", info, err)
	}
}
