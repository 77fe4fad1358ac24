// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
)

// APIGatewayPusher delivers payloads through the API Gateway management
// API when connections are hosted there instead of on the local hub.
type APIGatewayPusher struct {
	svc *apigatewaymanagementapi.ApiGatewayManagementApi
}

func NewAPIGatewayPusher(session *session.Session, endpoint string) *APIGatewayPusher {
	return &APIGatewayPusher{
		svc: apigatewaymanagementapi.New(session, aws.NewConfig().WithEndpoint(endpoint)),
	}
}

func (p *APIGatewayPusher) Push(ctx context.Context, connectionID string, payload []byte) error {
	_, err := p.svc.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         payload,
	})
	if err != nil {
		// 410 from the management API: the client hung up some time ago.
		if _, ok := err.(*apigatewaymanagementapi.GoneException); ok {
			return ErrConnectionGone
		}
	}
	return err
}
