package grpcsrc

import (
	"sync"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	// ServiceName is the fully-qualified name of the source service.
	ServiceName = "modgraph.source.v1.SourceService"

	protoPath = "modgraph/source/v1/source.proto"
)

// descriptors holds the reflected shape of the source service:
//
//	service SourceService {
//	  rpc Read(ReadRequest) returns (ReadResponse);
//	  rpc Has(HasRequest) returns (HasResponse);
//	}
type descriptors struct {
	file    protoreflect.FileDescriptor
	service protoreflect.ServiceDescriptor
	read    protoreflect.MethodDescriptor
	has     protoreflect.MethodDescriptor
}

var (
	descOnce sync.Once
	desc     *descriptors
	descErr  error
)

func loadDescriptors() (*descriptors, error) {
	descOnce.Do(func() { desc, descErr = buildDescriptors() })
	return desc, descErr
}

func buildDescriptors() (*descriptors, error) {
	fb := protobuilder.NewFile(protoPath)
	fb.SetPackageName("modgraph.source.v1")
	fb.SetSyntax(protoreflect.Proto3)

	message := func(name protoreflect.Name, field protoreflect.Name, kind protoreflect.Kind) *protobuilder.MessageBuilder {
		mb := protobuilder.NewMessage(name)
		mb.AddField(protobuilder.NewField(field, protobuilder.FieldTypeScalar(kind)))
		fb.AddMessage(mb)
		return mb
	}
	readReq := message("ReadRequest", "id", protoreflect.StringKind)
	readResp := message("ReadResponse", "content", protoreflect.StringKind)
	hasReq := message("HasRequest", "id", protoreflect.StringKind)
	hasResp := message("HasResponse", "exists", protoreflect.BoolKind)

	sb := protobuilder.NewService("SourceService")
	sb.AddMethod(protobuilder.NewMethod("Read",
		protobuilder.RpcTypeMessage(readReq, false),
		protobuilder.RpcTypeMessage(readResp, false),
	))
	sb.AddMethod(protobuilder.NewMethod("Has",
		protobuilder.RpcTypeMessage(hasReq, false),
		protobuilder.RpcTypeMessage(hasResp, false),
	))
	fb.AddService(sb)

	fd, err := fb.Build()
	if err != nil {
		return nil, err
	}
	svc := fd.Services().ByName("SourceService")
	return &descriptors{
		file:    fd,
		service: svc,
		read:    svc.Methods().ByName("Read"),
		has:     svc.Methods().ByName("Has"),
	}, nil
}

func fullMethod(md protoreflect.MethodDescriptor) string {
	return "/" + string(md.Parent().FullName()) + "/" + string(md.Name())
}

// field returns the single field of a request or response message.
func field(md protoreflect.MessageDescriptor) protoreflect.FieldDescriptor {
	return md.Fields().Get(0)
}
