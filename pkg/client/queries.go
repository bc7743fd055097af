package client

// GraphQL documents used by the client. Values are passed as variables.

const studiesQuery = `
query Studies($limit: Int, $offset: Int, $searchTerm: String, $partyId: String) {
  studies(limit: $limit, offset: $offset, searchTerm: $searchTerm, partyId: $partyId) {
    id
    name
    patient {
      id
      user {
        fullName
      }
    }
  }
}`

const studyWithDataQuery = `
query StudyWithData($studyId: String!) {
  study(id: $studyId) {
    id
    name
    patient {
      id
      user {
        fullName
      }
    }
    channelGroups {
      id
      name
      sampleRate
      samplesPerRecord
      recordLength
      chunkPeriod
      recordsPerChunk
      sampleEncoding
      compression
      signalMin
      signalMax
      units
      exponent
      timestamped
      segments(fromTime: 1.0, toTime: 9000000000000) {
        id
        startTime
        duration
      }
      channels {
        id
        name
        channelType {
          name
          category
        }
      }
    }
  }
}`

const segmentURLsQuery = `
query SegmentURLs($segmentIds: [String]) {
  studyChannelGroupSegments(segmentIds: $segmentIds) {
    id
    baseDataChunkUrl
  }
}`

const labelGroupsQuery = `
query LabelGroups($studyId: String!) {
  study(id: $studyId) {
    id
    name
    labelGroups {
      id
      name
      labelType
      description
    }
  }
}`

const labelsQuery = `
query Labels($studyId: String!, $labelGroupId: String!, $limit: Int, $offset: Int, $fromTime: Float, $toTime: Float) {
  study(id: $studyId) {
    id
    name
    labelGroup(labelGroupId: $labelGroupId) {
      id
      name
      labelType
      description
      labels(limit: $limit, offset: $offset, fromTime: $fromTime, toTime: $toTime) {
        id
        note
        startTime
        duration
        timezone
        confidence
        createdBy {
          fullName
        }
        updatedAt
        createdAt
        tags {
          id
          tagType {
            id
            category {
              id
              name
              description
            }
            value
          }
        }
      }
    }
  }
}`

const tagsQuery = `
query LabelTags {
  labelTags {
    id
    category {
      id
      name
      description
    }
    value
    forStudy
    forDiary
  }
}`

const addLabelGroupMutation = `
mutation AddLabelGroup($studyId: String!, $name: String!, $description: String, $labelType: String) {
  addLabelGroupToStudy(studyId: $studyId, name: $name, description: $description, labelType: $labelType) {
    id
  }
}`

const removeLabelGroupMutation = `
mutation RemoveLabelGroup($groupId: String!) {
  removeLabelGroupFromStudy(groupId: $groupId)
}`

const addLabelsMutation = `
mutation AddLabels($groupId: String!, $labels: [NewLabel]!) {
  addLabelsToLabelGroup(groupId: $groupId, labels: $labels) {
    id
  }
}`

const studiesByIDQuery = `
query StudiesByID($limit: Int, $offset: Int, $studyIds: [String]) {
  studies(limit: $limit, offset: $offset, studyIds: $studyIds) {
    id
    name
    patient {
      id
      user {
        fullName
      }
    }
  }
}`

const labelStringQuery = `
query LabelString($studyId: String!, $labelGroupId: String!, $fromTime: Float, $toTime: Float) {
  study(id: $studyId) {
    id
    name
    labelGroup(labelGroupId: $labelGroupId) {
      id
      name
      labelType
      description
      labelString(fromTime: $fromTime, toTime: $toTime)
    }
  }
}`

const viewedTimesQuery = `
query ViewedTimes($studyId: String!, $limit: Int, $offset: Int) {
  viewGroups(studyId: $studyId) {
    user {
      fullName
    }
    views(limit: $limit, offset: $offset) {
      id
      startTime
      duration
      createdAt
      updatedAt
    }
  }
}`

const documentsQuery = `
query Documents($studyId: String!) {
  study(id: $studyId) {
    id
    name
    documents {
      id
      name
      fileSize
      downloadFileUrl
    }
  }
}`

const organisationsQuery = `
query Organisations {
  organisations {
    id
    partyId
    ownerId
    name
    description
    isPublic
    isDeleted
  }
}`

const patientsQuery = `
query Patients($partyId: String) {
  patients(partyId: $partyId) {
    id
    user {
      id
      fullName
      shortName
      email
    }
  }
}`

const userFromPatientQuery = `
query UserFromPatient($patientId: String!) {
  patient(id: $patientId) {
    id
    user {
      id
      fullName
      shortName
      email
    }
  }
}`

const studyCohortQuery = `
query StudyCohort($cohortId: String!, $limit: Int, $offset: Int) {
  studyCohort(id: $cohortId) {
    studies(limit: $limit, offset: $offset) {
      id
    }
  }
}`

const createStudyCohortMutation = `
mutation CreateStudyCohort($name: String!, $description: String, $key: String, $memberIds: [String]) {
  createStudyCohort(input: {name: $name, description: $description, key: $key, studyIds: $memberIds}) {
    studyCohort {
      id
    }
  }
}`

const addStudiesToCohortMutation = `
mutation AddStudiesToStudyCohort($cohortId: String!, $memberIds: [String]!) {
  addStudiesToStudyCohort(studyCohortId: $cohortId, studyIds: $memberIds) {
    studyCohort {
      id
    }
  }
}`

const removeStudiesFromCohortMutation = `
mutation RemoveStudiesFromStudyCohort($cohortId: String!, $memberIds: [String]!) {
  removeStudiesFromStudyCohort(studyCohortId: $cohortId, studyIds: $memberIds) {
    studyCohort {
      id
    }
  }
}`

const userCohortQuery = `
query UserCohort($cohortId: String!, $limit: Int, $offset: Int) {
  userCohort(id: $cohortId) {
    users(limit: $limit, offset: $offset) {
      id
    }
  }
}`

const createUserCohortMutation = `
mutation CreateUserCohort($name: String!, $description: String, $key: String, $memberIds: [String]) {
  createUserCohort(input: {name: $name, description: $description, key: $key, userIds: $memberIds}) {
    userCohort {
      id
    }
  }
}`

const addUsersToCohortMutation = `
mutation AddUsersToUserCohort($cohortId: String!, $memberIds: [String]!) {
  addUsersToUserCohort(userCohortId: $cohortId, userIds: $memberIds) {
    userCohort {
      id
    }
  }
}`

const removeUsersFromCohortMutation = `
mutation RemoveUsersFromUserCohort($cohortId: String!, $memberIds: [String]!) {
  removeUsersFromUserCohort(userCohortId: $cohortId, userIds: $memberIds) {
    userCohort {
      id
    }
  }
}`
