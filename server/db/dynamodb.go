// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/guregu/dynamo"
)

const (
	scoreIndex        = "score-index"
	countryScoreIndex = "country-score-index"
	totalScoreIndex   = "totalScore-index"
)

type DynamoDBDatabase struct {
	svc              *dynamodb.DynamoDB
	db               *dynamo.DB
	scoresTable      dynamo.Table
	countriesTable   dynamo.Table
	connectionsTable dynamo.Table
}

func NewDynamoDBDatabase(session *session.Session, stage string) (*DynamoDBDatabase, error) {
	ddb := &DynamoDBDatabase{svc: dynamodb.New(session)}
	ddb.db = dynamo.NewFromIface(ddb.svc)
	ddb.scoresTable = ddb.db.Table("starblitz-" + stage + "-scores")
	ddb.countriesTable = ddb.db.Table("starblitz-" + stage + "-countries")
	ddb.connectionsTable = ddb.db.Table("starblitz-" + stage + "-connections")
	return ddb, nil
}

func (ddb *DynamoDBDatabase) PutScore(score Score) error {
	score.All = IndexAll
	return ddb.scoresTable.Put(score).Run()
}

func (ddb *DynamoDBDatabase) TopScores(limit int) (scores []Score, err error) {
	query := ddb.scoresTable.Get("all", IndexAll).
		Index(scoreIndex).
		Order(dynamo.Descending).
		Limit(int64(limit)).
		Iter()

	for {
		var score Score
		ok := query.Next(&score)
		if !ok {
			err = query.Err()
			return
		}
		scores = append(scores, score)
	}
}

func (ddb *DynamoDBDatabase) ScoresByCountry(country string, limit int) (scores []Score, err error) {
	query := ddb.scoresTable.Get("country", country).
		Index(countryScoreIndex).
		Order(dynamo.Descending).
		Limit(int64(limit)).
		Iter()

	for {
		var score Score
		ok := query.Next(&score)
		if !ok {
			err = query.Err()
			return
		}
		scores = append(scores, score)
	}
}

// CountScoresAbove is a filtered scan over the whole collection. O(n) per
// call; acceptable because rank is approximate by contract.
func (ddb *DynamoDBDatabase) CountScoresAbove(score int) (int, error) {
	count, err := ddb.scoresTable.Scan().Filter("$ > ?", "score", score).Count()
	return int(count), err
}

func (ddb *DynamoDBDatabase) GetCountry(country string) (Country, bool, error) {
	var row Country
	err := ddb.countriesTable.Get("country", country).One(&row)
	if err == dynamo.ErrNotFound {
		return Country{}, false, nil
	}
	if err != nil {
		return Country{}, false, err
	}
	return row, true, nil
}

func (ddb *DynamoDBDatabase) PutCountry(country Country) error {
	country.All = IndexAll
	// Plain put, no condition expression: concurrent writers may lose an
	// increment. An ADD update expression is the strict alternative.
	return ddb.countriesTable.Put(country).Run()
}

func (ddb *DynamoDBDatabase) TopCountries(limit int) (countries []Country, err error) {
	query := ddb.countriesTable.Get("all", IndexAll).
		Index(totalScoreIndex).
		Order(dynamo.Descending).
		Limit(int64(limit)).
		Iter()

	for {
		var country Country
		ok := query.Next(&country)
		if !ok {
			err = query.Err()
			return
		}
		countries = append(countries, country)
	}
}

func (ddb *DynamoDBDatabase) PutConnection(conn Connection) error {
	return ddb.connectionsTable.Put(conn).Run()
}

func (ddb *DynamoDBDatabase) DeleteConnection(connectionID string) error {
	return ddb.connectionsTable.Delete("connectionId", connectionID).Run()
}

func (ddb *DynamoDBDatabase) Connections() (conns []Connection, err error) {
	query := ddb.connectionsTable.Scan().Iter()

	for {
		var conn Connection
		ok := query.Next(&conn)
		if !ok {
			err = query.Err()
			return
		}
		conns = append(conns, conn)
	}
}
