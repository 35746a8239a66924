package blob

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(b))
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePutUsesPrefix(t *testing.T) {
	fake := &fakeS3{}
	s := newS3Store(fake, "bucket", "/ledger/")
	key := ArchiveKey("clients", "clients_March_2025")
	if err := s.Put(context.Background(), key, []byte("Client\n"), ContentTypeCSV); err != nil {
		t.Fatal(err)
	}
	in := fake.inputs[0]
	if aws.ToString(in.Key) != "ledger/archives/clients/clients_March_2025.csv" {
		t.Fatalf("key = %q", aws.ToString(in.Key))
	}
	if aws.ToString(in.Bucket) != "bucket" || aws.ToString(in.ContentType) != ContentTypeCSV {
		t.Fatalf("unexpected input: %+v", in)
	}
	if fake.bodies[0] != "Client\n" || aws.ToInt64(in.ContentLength) != 7 {
		t.Fatalf("body = %q", fake.bodies[0])
	}
}

func TestS3StorePutWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := newS3Store(&fakeS3{err: boom}, "bucket", "")
	err := s.Put(context.Background(), InvoiceKey("Invoice_A_20250101.pdf"), nil, ContentTypePDF)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
	var _ Store = Nop{}
}
