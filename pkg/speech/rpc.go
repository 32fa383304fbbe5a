package speech

import (
	"context"

	"google.golang.org/grpc"

	"github.com/littleblus/breezechat/pkg/rpc"
)

type recognizeRequest struct {
	SpeechContent []byte `json:"speech_content"`
}

type recognizeResponse struct {
	Success           bool   `json:"success"`
	ErrMsg            string `json:"errmsg"`
	RecognitionResult string `json:"recognition_result"`
}

// ServiceDesc builds the SpeechService grpc.ServiceDesc exposing the sole
// operation spec.md §6 names: Recognize.
func ServiceDesc(port Port) grpc.ServiceDesc {
	return rpc.BuildServiceDesc("SpeechService", port, []rpc.Method{
		{
			Name:       "Recognize",
			NewRequest: func() any { return &recognizeRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*recognizeRequest)
				result, err := port.Recognize(ctx, r.SpeechContent)
				if err != nil {
					return recognizeResponse{ErrMsg: err.Error()}, nil
				}
				return recognizeResponse{Success: true, RecognitionResult: result}, nil
			},
		},
	})
}
